package server

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleWebSocket serves the same search contract as POST /search over a
// websocket: the client sends {query, searchType, hash} objects and receives
// one "stream" message per fragment, terminated by a "done" message.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req searchRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		s.streamToSocket(c.Request.Context(), conn, req)
	}
}

func (s *Server) streamToSocket(ctx context.Context, conn *websocket.Conn, req searchRequest) {
	if req.Query == "" || req.Hash == "" {
		s.sendMessage(conn, "error", "query and hash are required")
		return
	}

	st, err := s.searcher.Search(ctx, req.Hash, req.Query, req.SearchType)
	if err != nil {
		log.Error("websocket search failed", "hash", req.Hash, "mode", req.SearchType, "error", err)
		s.sendMessage(conn, "error", "Internal server error")
		return
	}
	defer st.Close()

	for {
		fragment, ok := st.Next()
		if !ok {
			break
		}
		if !s.sendMessage(conn, "stream", fragment) {
			return
		}
	}

	s.sendMessage(conn, "done", "")
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType, content string) bool {
	if err := conn.WriteJSON(wsMessage{Type: msgType, Content: content}); err != nil {
		log.Error("failed to send websocket message", "error", err)
		return false
	}
	return true
}
