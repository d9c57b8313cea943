/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package server

import (
	"bytes"
	"io"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn, which is message-framed, into the
// plain byte stream internal/conn and internal/frame expect. On the
// write side each Write becomes one binary WebSocket message; conn's
// buffered writer flushes once per packet, so a frame that fits its
// write buffer travels in one message and a larger one spans several.
// On the read side, Read drains the current message before asking
// gorilla for the next one, so a caller reading fewer bytes than one
// WebSocket message works exactly like reading from a net.Conn.
type wsConn struct {
	ws  *websocket.Conn
	buf bytes.Buffer
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, io.EOF
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.buf.Write(data)
	}
	return c.buf.Read(p)
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
