// Package timing measures how long a conference participant takes to get
// from page load to flowing media, and checks each stage against a fixed
// budget.
//
// The application under test records a timestamp for every stage of its
// startup. Each stage is a Checkpoint. A Collector restarts a participant
// several times and samples every checkpoint per trial into a Matrix; a
// Verifier then compares the median gap between a checkpoint and its
// baseline against the checkpoint's threshold.
package timing

import "fmt"

// ID identifies a checkpoint. Values double as the row index of the
// checkpoint in a Matrix and as its position in registry order.
type ID int

const (
	IndexLoaded ID = iota
	DocumentReady
	ConnectionAttaching
	ConnectionAttached
	ConnectionConnecting
	ConnectionConnected
	MUCJoined
	SessionInitiate
	IceChecking
	IceConnected
	AudioRender
	VideoRender
	DataChannelOpened

	numCheckpoints
)

// None marks the absence of a predecessor.
const None ID = -1

// String returns the checkpoint name.
func (id ID) String() string {
	if id.Valid() {
		return registry[id].Name
	}
	if id == None {
		return "NONE"
	}
	return fmt.Sprintf("ID(%d)", int(id))
}

// Valid reports whether id names a registered checkpoint.
func (id ID) Valid() bool {
	return id >= 0 && id < numCheckpoints
}

// Checkpoint describes one timestamp the application emits while it loads
// and joins a conference.
type Checkpoint struct {
	ID   ID
	Name string

	// Expr is a JavaScript expression that yields the timestamp in
	// milliseconds, or null/undefined while the stage has not happened.
	Expr string

	// Predecessor is the checkpoint this one is measured from, or None.
	Predecessor ID

	// Threshold is the largest allowed median gap in milliseconds.
	Threshold float64
}

const (
	appTimes        = "APP.connectionTimes"
	connectionTimes = "APP.connection.getConnectionTimes()"
	roomTimes       = "APP.conference._room.getConnectionTimes()"
)

// registry is indexed by ID.
var registry = [numCheckpoints]Checkpoint{
	{IndexLoaded, "INDEX_LOADED", appTimes + "['index.loaded']", None, 200},
	{DocumentReady, "DOCUMENT_READY", appTimes + "['document.ready']", IndexLoaded, 600},
	{ConnectionAttaching, "CONNECTION_ATTACHING", connectionTimes + "['attaching']", DocumentReady, 500},
	{ConnectionAttached, "CONNECTION_ATTACHED", connectionTimes + "['attached']", ConnectionAttaching, 5},
	{ConnectionConnecting, "CONNECTION_CONNECTING", connectionTimes + "['connecting']", DocumentReady, 500},
	{ConnectionConnected, "CONNECTION_CONNECTED", connectionTimes + "['connected']", ConnectionConnecting, 1000},
	// MUC_JOINED is measured from whichever of attached/connected the
	// run resolves to, so it declares no predecessor of its own.
	{MUCJoined, "MUC_JOINED", roomTimes + "['muc.joined']", None, 500},
	{SessionInitiate, "SESSION_INITIATE", roomTimes + "['session.initiate']", MUCJoined, 600},
	{IceChecking, "ICE_CHECKING", roomTimes + "['ice.state.checking']", SessionInitiate, 150},
	{IceConnected, "ICE_CONNECTED", roomTimes + "['ice.state.connected']", IceChecking, 500},
	{AudioRender, "AUDIO_RENDER", roomTimes + "['audio.render']", IceConnected, 200},
	{VideoRender, "VIDEO_RENDER", roomTimes + "['video.render']", IceConnected, 200},
	// The data channel should open about two RTTs after DTLS completes,
	// but bridges in the wild add seconds of delay.
	{DataChannelOpened, "DATA_CHANNEL_OPENED", roomTimes + "['data.channel.opened']", IceConnected, 4000},
}

// ReadyExpr is true once every object the checkpoint expressions
// dereference exists.
const ReadyExpr = `(typeof APP !== 'undefined' && APP && APP.connection && APP.conference && APP.conference._room) ? true : false`

// AttachModeExpr is true when the application attaches to a pre-bound
// session instead of opening its own connection.
const AttachModeExpr = `(typeof config !== 'undefined' && !!config.externalConnectUrl)`

// TerminalCheckpoints resolve after every other checkpoint in the chain.
// Waiting for them is enough to know the whole chain has been recorded.
var TerminalCheckpoints = []ID{AudioRender, VideoRender, DataChannelOpened}
