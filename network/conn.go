package network

import (
	"time"

	"github.com/gorilla/websocket"
)

// Connection is one player's socket as the rest of the package sees it.
type Connection interface {
	Close(errCode string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

const (
	controlTimeout = 5 * time.Second
	readTimeout    = time.Minute
)

type websocketConnection struct {
	socket *websocket.Conn
}

func (wc *websocketConnection) Write(data []byte) error {
	wc.socket.SetWriteDeadline(time.Now().Add(controlTimeout))
	return wc.socket.WriteMessage(websocket.BinaryMessage, data)
}

// Ping and Close go through WriteControl, which gorilla allows concurrently
// with the write pump.
func (wc *websocketConnection) Ping() error {
	return wc.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlTimeout))
}

func (wc *websocketConnection) Read() ([]byte, error) {
	_, p, err := wc.socket.ReadMessage()
	return p, err
}

func (wc *websocketConnection) Close(errCode string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, errCode)
	wc.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlTimeout))
	wc.socket.Close()
}

func NewWebsocketConnection(conn *websocket.Conn) Connection {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return &websocketConnection{conn}
}
