package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// BridgeChannelLabel is the label of the data channel the server opens
// towards every participant.
const BridgeChannelLabel = "bridge"

const pliInterval = 2 * time.Second

// newAPI builds a webrtc API with RTCP reports, stats and NACK
// interceptors registered.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	i := &interceptor.Registry{}

	// Configure RTCP reports (Sender/Receiver reports) - required for WebRTC
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("failed to configure RTCP reports: %w", err)
	}
	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		return nil, fmt.Errorf("failed to configure stats interceptor: %w", err)
	}

	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create NACK generator: %w", err)
	}
	i.Add(generator)

	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create NACK responder: %w", err)
	}
	i.Add(responder)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	), nil
}

// TrackStats counts what a loopback forwarded.
type TrackStats struct {
	Packets uint64
	Bytes   uint64
	Frames  uint64
}

type loopback struct {
	local   *webrtc.TrackLocalStaticRTP
	kind    webrtc.RTPCodecType
	packets atomic.Uint64
	bytes   atomic.Uint64
	frames  atomic.Uint64
}

// forward writes pkt back to the participant it came from.
func (l *loopback) forward(pkt *rtp.Packet) error {
	l.packets.Add(1)
	l.bytes.Add(uint64(len(pkt.Payload)))
	if pkt.Marker && l.kind == webrtc.RTPCodecTypeVideo {
		l.frames.Add(1)
	}
	if err := l.local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

func (l *loopback) stats() TrackStats {
	return TrackStats{
		Packets: l.packets.Load(),
		Bytes:   l.bytes.Load(),
		Frames:  l.frames.Load(),
	}
}

// Media is the server side of one participant's peer connection. The
// participant's audio and video are sent straight back so the page can
// render remote media without a second participant.
type Media struct {
	pc  *webrtc.PeerConnection
	log logrus.FieldLogger

	mu    sync.Mutex
	loops map[webrtc.RTPCodecType]*loopback

	done      chan struct{}
	closeOnce sync.Once
}

// NewMedia creates a peer connection with sendrecv audio and video
// transceivers and the bridge data channel. onICE is called on ICE state
// changes.
func NewMedia(api *webrtc.API, log logrus.FieldLogger, onICE func(webrtc.ICEConnectionState)) (*Media, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{}, // Local testing
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	md := &Media{
		pc:    pc,
		log:   log,
		loops: make(map[webrtc.RTPCodecType]*loopback),
		done:  make(chan struct{}),
	}

	codecs := map[webrtc.RTPCodecType]webrtc.RTPCodecCapability{
		webrtc.RTPCodecTypeAudio: {MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		webrtc.RTPCodecTypeVideo: {MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		track, err := webrtc.NewTrackLocalStaticRTP(codecs[kind], kind.String(), "loopback")
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create %s track: %w", kind, err)
		}
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to add %s track: %w", kind, err)
		}
		go drainRTCP(sender)
		md.loops[kind] = &loopback{local: track, kind: kind}
	}

	dc, err := pc.CreateDataChannel(BridgeChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	md.echo(dc)
	pc.OnDataChannel(md.echo)

	pc.OnTrack(md.onTrack)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.WithField("state", state.String()).Debug("ICE state")
		if onICE != nil {
			onICE(state)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.WithField("state", state.String()).Debug("connection state")
		if state == webrtc.PeerConnectionStateFailed {
			md.Close()
		}
	})
	return md, nil
}

// Offer creates the session-initiate offer, with every ICE candidate
// gathered.
func (md *Media) Offer() (*webrtc.SessionDescription, error) {
	offer, err := md.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	return md.complete(offer)
}

// Answer applies a remote offer and returns the local answer.
func (md *Media) Answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := md.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := md.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	return md.complete(answer)
}

// Accept applies the participant's answer to our offer.
func (md *Media) Accept(answer webrtc.SessionDescription) error {
	if err := md.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (md *Media) complete(desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(md.pc)
	if err := md.pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-md.done:
		return nil, errors.New("peer connection closed")
	}
	return md.pc.LocalDescription(), nil
}

// Stats returns the forwarding counters of each media kind.
func (md *Media) Stats() map[string]TrackStats {
	md.mu.Lock()
	defer md.mu.Unlock()
	out := make(map[string]TrackStats, len(md.loops))
	for kind, l := range md.loops {
		out[kind.String()] = l.stats()
	}
	return out
}

// Close tears the peer connection down.
func (md *Media) Close() error {
	var err error
	md.closeOnce.Do(func() {
		close(md.done)
		err = md.pc.Close()
		md.log.WithField("stats", md.Stats()).Debug("media closed")
	})
	return err
}

func (md *Media) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	md.mu.Lock()
	l := md.loops[track.Kind()]
	md.mu.Unlock()
	log := md.log.WithFields(logrus.Fields{
		"codec": track.Codec().MimeType,
		"ssrc":  uint32(track.SSRC()),
	})
	log.Info("received track")
	if l == nil {
		return
	}

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go md.requestKeyframes(track.SSRC())
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.WithError(err).Debug("track read ended")
			return
		}
		if err := l.forward(pkt); err != nil {
			log.WithError(err).Warn("loopback write failed")
			return
		}
	}
}

// requestKeyframes sends PLIs so the loopback starts rendering without
// waiting for the browser's next keyframe.
func (md *Media) requestKeyframes(ssrc webrtc.SSRC) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}
		if err := md.pc.WriteRTCP(pli); err != nil {
			return
		}
		select {
		case <-md.done:
			return
		case <-ticker.C:
		}
	}
}

func (md *Media) echo(dc *webrtc.DataChannel) {
	log := md.log.WithField("label", dc.Label())
	dc.OnOpen(func() {
		log.Debug("data channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var err error
		if msg.IsString {
			err = dc.SendText(string(msg.Data))
		} else {
			err = dc.Send(msg.Data)
		}
		if err != nil {
			log.WithError(err).Debug("echo failed")
		}
	})
}

// drainRTCP reads incoming RTCP so interceptors (NACK responder, reports)
// keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
