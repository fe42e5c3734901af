package server

// HTMLPage is the conference app. It exposes the APP object that the
// torture suite inspects: connection checkpoints, membership, ICE state
// and media stats.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Meet Torture Reference Conference</title>
    <script>
        window.APP = window.APP || {};
        APP.connectionTimes = { 'index.loaded': window.performance.now() };
    </script>
    <script src="/config.js"></script>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            margin: 0;
            background: #1c1c1c;
            color: #eee;
        }
        #status {
            padding: 10px 20px;
            font-weight: 500;
            background: #333;
        }
        .status-connecting { color: #8ab4f8; }
        .status-connected { color: #81c995; }
        .status-error { color: #f28b82; }
        .status-closed { color: #aaa; }
        #largeVideo {
            width: 100%;
            max-width: 960px;
            background: #000;
            display: block;
            margin: 20px auto;
        }
        #remoteVideos { text-align: center; }
        .videocontainer {
            display: inline-block;
            width: 160px;
            height: 90px;
            margin: 5px;
            background: #444;
            border-radius: 4px;
            line-height: 90px;
            font-size: 12px;
        }
        .dialog {
            position: fixed;
            top: 30%;
            left: 50%;
            transform: translateX(-50%);
            background: white;
            color: #333;
            padding: 20px 30px;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.5);
        }
        .dialog input { display: block; margin: 8px 0; padding: 6px; width: 240px; }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 8px 16px;
            border-radius: 4px;
            cursor: pointer;
            margin-top: 10px;
        }
    </style>
</head>
<body>
    <div id="status" class="status-connecting">Loading</div>
    <div id="prejoin" class="dialog" style="display:none">
        <span data-i18n="dialog.enterDisplayName">Enter your name</span>
        <input id="displayname" type="text" autocomplete="off">
        <button id="joinButton">Join</button>
    </div>
    <div id="dialogs"></div>
    <video id="largeVideo" autoplay playsinline muted></video>
    <div id="remoteVideos"></div>
    <div id="audioElements" style="display:none"></div>

    <script>
    (function() {
        'use strict';

        function now() { return window.performance.now(); }

        function setStatus(message, type) {
            const status = document.getElementById('status');
            status.textContent = message;
            status.className = 'status-' + type;
        }

        // #config.key=value&config.other=value overrides config.js.
        function applyHashOverrides(cfg) {
            const hash = window.location.hash.replace(/^#/, '');
            if (!hash) {
                return;
            }
            hash.split('&').forEach(function(pair) {
                const i = pair.indexOf('=');
                if (i < 0) {
                    return;
                }
                const key = decodeURIComponent(pair.slice(0, i));
                const raw = decodeURIComponent(pair.slice(i + 1));
                if (key.indexOf('config.') !== 0) {
                    return;
                }
                let value;
                try {
                    value = JSON.parse(raw);
                } catch (e) {
                    value = raw;
                }
                cfg[key.slice('config.'.length)] = value;
            });
        }
        applyHashOverrides(config);

        // Attach mode: the session is pre-bound while the page loads.
        const preBind = config.externalConnectUrl
            ? fetch(config.externalConnectUrl, { method: 'POST' }).then(function(r) {
                if (!r.ok) {
                    throw new Error('pre-bind failed: ' + r.status);
                }
                return r.json();
            })
            : null;

        const roomName = decodeURIComponent(window.location.pathname.replace(/^\/+/, '')).toLowerCase() || 'lobby';

        function Connection() {
            this.times = {};
            this.handlers = {};
            this.ws = null;
            this.sid = null;
        }

        Connection.prototype.getConnectionTimes = function() {
            return this.times;
        };

        Connection.prototype.on = function(type, fn) {
            this.handlers[type] = fn;
        };

        Connection.prototype.send = function(msg) {
            if (this.ws && this.ws.readyState === WebSocket.OPEN) {
                this.ws.send(JSON.stringify(msg));
            }
        };

        Connection.prototype.open = function() {
            const self = this;
            return new Promise(function(resolve, reject) {
                const proto = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
                const ws = new WebSocket(proto + '//' + window.location.host + config.websocket);
                ws.onopen = function() { resolve(ws); };
                ws.onerror = function() { reject(new Error('signaling connection failed')); };
                ws.onclose = function() {
                    if (APP.conference.joined) {
                        setStatus('Disconnected', 'closed');
                    }
                    APP.conference.joined = false;
                };
                ws.onmessage = function(ev) {
                    const msg = JSON.parse(ev.data);
                    const handler = self.handlers[msg.type];
                    if (handler) {
                        handler(msg);
                    }
                };
                self.ws = ws;
            });
        };

        Connection.prototype.connect = function() {
            const self = this;
            if (preBind) {
                self.times['attaching'] = now();
                return preBind.then(function(session) {
                    self.sid = session.sid;
                    self.times['attached'] = now();
                    return self.open();
                });
            }
            self.times['connecting'] = now();
            return self.open().then(function() {
                self.times['connected'] = now();
            });
        };

        Connection.prototype.disconnect = function() {
            if (this.ws) {
                this.ws.close();
                this.ws = null;
            }
        };

        function Room(name) {
            this.name = name;
            this.times = {};
        }

        Room.prototype.getConnectionTimes = function() {
            return this.times;
        };

        Room.prototype.record = function(key) {
            if (this.times[key] === undefined) {
                this.times[key] = now();
            }
        };

        const conference = {
            _room: null,
            pc: null,
            myId: null,
            joined: false,
            members: [],
            membersCount: 0,
            videoType: config.autoEnableDesktopSharing ? 'desktop' : 'camera',
            stats: { bitrate: { upload: 0, download: 0 } },
            isJoined: function() { return this.joined; },
            isIceConnected: function() {
                return !!this.pc && (this.pc.iceConnectionState === 'connected' || this.pc.iceConnectionState === 'completed');
            },
            getStats: function() { return this.stats; },
            getRemoteStreamCount: function() {
                const me = this.myId;
                return this.members.filter(function(m) { return m.id !== me && m.media; }).length;
            },
            hangup: function() {
                if (this.pc) {
                    this.pc.close();
                    this.pc = null;
                }
                if (localMedia) {
                    localMedia.then(function(stream) {
                        stream.getTracks().forEach(function(t) { t.stop(); });
                    }).catch(function() {});
                }
                APP.connection.disconnect();
                this.joined = false;
                setStatus('Call ended', 'closed');
            }
        };
        APP.conference = conference;

        APP.UI = {
            getRemoteVideoType: function(id) {
                const m = conference.members.find(function(m) { return m.id === id; });
                return m ? m.videoType : '';
            }
        };

        let localMedia = null;

        function acquireMedia() {
            if (config.autoEnableDesktopSharing) {
                return Promise.all([
                    navigator.mediaDevices.getDisplayMedia({ video: true }),
                    navigator.mediaDevices.getUserMedia({ audio: true })
                ]).then(function(streams) {
                    return new MediaStream(streams[0].getVideoTracks().concat(streams[1].getAudioTracks()));
                });
            }
            return navigator.mediaDevices.getUserMedia({ audio: true, video: { width: 640, height: 360 } });
        }

        function showDialog(html) {
            const dialogs = document.getElementById('dialogs');
            const div = document.createElement('div');
            div.className = 'dialog';
            div.innerHTML = html;
            dialogs.innerHTML = '';
            dialogs.appendChild(div);
            return div;
        }

        function clearDialogs() {
            document.getElementById('dialogs').innerHTML = '';
        }

        function showError(reason) {
            setStatus('Error: ' + reason, 'error');
            if (reason === 'maxUsersLimitReached') {
                showDialog('<span data-i18n="dialog.maxUsersLimitReached">The limit for maximum number of participants in the conference has been reached.</span>');
                return;
            }
            showDialog('<span data-i18n="dialog.' + reason + '">' + reason + '</span>');
        }

        function showHostDialog() {
            const div = showDialog(
                '<span data-i18n="dialog.WaitingForHost">Waiting for the host ...</span><br>' +
                '<button name="jqi_state0_buttonspandatai18ndialogIamHostIamthehostspan">I am the host</button>');
            div.querySelector('button').onclick = showLoginDialog;
        }

        function showLoginDialog() {
            const div = showDialog(
                '<span data-i18n="dialog.passwordRequired">Authentication required</span>' +
                '<input name="username" type="text" autocomplete="off">' +
                '<input name="password" type="password">' +
                '<button name="jqi_login_buttonspandatai18ndialogOkOkspan">Ok</button>');
            div.querySelector('button').onclick = function() {
                APP.connection.send({
                    type: 'auth',
                    username: div.querySelector('input[name=username]').value,
                    password: div.querySelector('input[name=password]').value
                });
                clearDialogs();
            };
        }

        function renderMembers(members) {
            conference.members = members;
            conference.membersCount = members.length;
            const container = document.getElementById('remoteVideos');
            const seen = {};
            members.forEach(function(m) {
                if (m.id === conference.myId) {
                    return;
                }
                seen[m.id] = true;
                let span = document.getElementById('participant_' + m.id);
                if (!span) {
                    span = document.createElement('span');
                    span.id = 'participant_' + m.id;
                    span.className = 'videocontainer';
                    container.appendChild(span);
                }
                span.textContent = (m.name || m.id) + ' (' + m.videoType + ')';
            });
            Array.prototype.slice.call(container.children).forEach(function(span) {
                if (!seen[span.id.replace('participant_', '')]) {
                    container.removeChild(span);
                }
            });
        }

        function onTrack(ev) {
            const room = conference._room;
            const stream = ev.streams[0] || new MediaStream([ev.track]);
            if (ev.track.kind === 'audio') {
                const audio = document.createElement('audio');
                audio.autoplay = true;
                audio.onplaying = function() { room.record('audio.render'); };
                audio.srcObject = stream;
                document.getElementById('audioElements').appendChild(audio);
                return;
            }
            const video = document.getElementById('largeVideo');
            video.onplaying = function() { room.record('video.render'); };
            video.srcObject = stream;
        }

        function watchStats(pc) {
            let last = null;
            const timer = setInterval(function() {
                if (conference.pc !== pc) {
                    clearInterval(timer);
                    return;
                }
                pc.getStats().then(function(report) {
                    let sent = 0;
                    let received = 0;
                    report.forEach(function(s) {
                        if (s.type === 'outbound-rtp') {
                            sent += s.bytesSent || 0;
                        } else if (s.type === 'inbound-rtp') {
                            received += s.bytesReceived || 0;
                        }
                    });
                    const t = now();
                    if (last) {
                        const secs = (t - last.t) / 1000;
                        conference.stats = {
                            bitrate: {
                                upload: Math.round((sent - last.sent) * 8 / 1000 / secs),
                                download: Math.round((received - last.received) * 8 / 1000 / secs)
                            }
                        };
                    }
                    last = { t: t, sent: sent, received: received };
                });
            }, 1000);
        }

        function onSessionInitiate(offer) {
            const room = conference._room;
            const pc = new RTCPeerConnection({ iceServers: [] });
            conference.pc = pc;

            pc.oniceconnectionstatechange = function() {
                const state = pc.iceConnectionState;
                if (state === 'checking') {
                    room.record('ice.state.checking');
                } else if (state === 'connected' || state === 'completed') {
                    room.record('ice.state.checking');
                    room.record('ice.state.connected');
                    setStatus('Connected to ' + room.name, 'connected');
                } else if (state === 'failed') {
                    setStatus('Media connection failed', 'error');
                }
            };
            pc.ontrack = onTrack;
            pc.ondatachannel = function(ev) {
                const channel = ev.channel;
                channel.onopen = function() {
                    room.record('data.channel.opened');
                    channel.send(JSON.stringify({ colibriClass: 'ClientHello' }));
                };
            };

            pc.setRemoteDescription(offer)
                .then(function() { return localMedia; })
                .then(function(stream) {
                    stream.getTracks().forEach(function(track) {
                        pc.addTrack(track, stream);
                    });
                    return pc.createAnswer();
                })
                .then(function(answer) { return pc.setLocalDescription(answer); })
                .then(function() {
                    APP.connection.send({ type: 'answer', sdp: pc.localDescription });
                    watchStats(pc);
                })
                .catch(function(err) {
                    console.error('session-initiate failed', err);
                    showError('sessionFailed');
                });
        }

        function join(displayName) {
            const conn = APP.connection;
            const room = conference._room;

            conn.on('auth-required', showHostDialog);
            conn.on('error', function(msg) { showError(msg.reason); });
            conn.on('joined', function(msg) {
                room.record('muc.joined');
                conference.myId = msg.id;
                conference.joined = true;
                renderMembers(msg.members || []);
                setStatus('Joined ' + room.name, 'connecting');
            });
            conn.on('members', function(msg) { renderMembers(msg.members || []); });
            conn.on('session-initiate', function(msg) {
                room.record('session.initiate');
                onSessionInitiate(msg.sdp);
            });
            conn.on('answer', function(msg) {
                if (conference.pc) {
                    conference.pc.setRemoteDescription(msg.sdp);
                }
            });

            conn.send({
                type: 'join',
                room: room.name,
                session: conn.sid || undefined,
                name: displayName,
                videoType: conference.videoType
            });
        }

        function displayName() {
            if (!config.requireDisplayName) {
                return Promise.resolve('');
            }
            return new Promise(function(resolve) {
                const prejoin = document.getElementById('prejoin');
                const input = document.getElementById('displayname');
                prejoin.style.display = 'block';
                function done() {
                    if (!input.value) {
                        return;
                    }
                    prejoin.style.display = 'none';
                    resolve(input.value);
                }
                document.getElementById('joinButton').onclick = done;
                input.onkeydown = function(ev) {
                    if (ev.key === 'Enter') {
                        done();
                    }
                };
            });
        }

        function start() {
            APP.connectionTimes['document.ready'] = now();
            APP.connection = new Connection();
            conference._room = new Room(roomName);
            localMedia = acquireMedia();
            localMedia.catch(function(err) {
                console.error('media unavailable', err);
            });

            setStatus('Connecting', 'connecting');
            displayName()
                .then(function(name) {
                    return APP.connection.connect().then(function() { join(name); });
                })
                .catch(function(err) {
                    console.error(err);
                    showError('connectionFailed');
                });
        }

        if (document.readyState === 'loading') {
            document.addEventListener('DOMContentLoaded', start);
        } else {
            start();
        }
    })();
    </script>
</body>
</html>`
