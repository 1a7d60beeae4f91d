package spreadsheet

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tabula/formula"
	"tabula/grid"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dev
	},
}

// Server exposes a sheet over a websocket: clients send cell updates and
// receive the re-evaluated cells they affect.
type Server struct {
	sheet   *Sheet
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func NewServer() *Server {
	s := &Server{
		sheet:   New(),
		clients: make(map[*websocket.Conn]bool),
	}
	s.populateDemo()
	return s
}

type UpdateRequest struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Value string `json:"value"`
}

type UpdateResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Text    string `json:"text"`
	Display string `json:"display"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	s.sendInitialState(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req UpdateRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Println("JSON error:", err)
			continue
		}

		switch req.Type {
		case "update_cell":
			s.handleUpdate(conn, req)
		case "clear_cell":
			s.handleClear(conn, req)
		case "reset":
			s.mu.Lock()
			s.sheet = New()
			s.populateDemo()
			s.mu.Unlock()
			s.broadcastAll()
		}
	}
}

func (s *Server) handleUpdate(conn *websocket.Conn, req UpdateRequest) {
	pos := grid.PositionFromString(req.ID)

	s.mu.Lock()
	err := s.sheet.SetCell(pos, req.Value)
	s.mu.Unlock()

	if err != nil {
		s.writeError(conn, req.ID, err.Error())
		return
	}
	s.broadcastAffected(pos)
}

func (s *Server) handleClear(conn *websocket.Conn, req UpdateRequest) {
	pos := grid.PositionFromString(req.ID)

	s.mu.Lock()
	err := s.sheet.ClearCell(pos)
	s.mu.Unlock()

	if err != nil {
		s.writeError(conn, req.ID, err.Error())
		return
	}
	s.broadcastAffected(pos)
}

// broadcastAffected sends the mutated cell and every transitive dependant,
// since all of their displayed values may have changed.
func (s *Server) broadcastAffected(pos grid.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make(map[grid.Position]bool)
	s.collectAffected(pos, affected)
	for p := range affected {
		resp := s.responseFor(p)
		for client := range s.clients {
			if err := client.WriteJSON(resp); err != nil {
				log.Printf("update write failed: %v", err)
				_ = client.Close()
				delete(s.clients, client)
			}
		}
	}
}

func (s *Server) collectAffected(pos grid.Position, affected map[grid.Position]bool) {
	if affected[pos] {
		return
	}
	affected[pos] = true
	for _, dep := range s.sheet.Dependants(pos) {
		s.collectAffected(dep, affected)
	}
}

func (s *Server) broadcastAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := UpdateResponse{Type: "reset"}
	for client := range s.clients {
		if err := client.WriteJSON(reset); err != nil {
			log.Printf("reset write failed: %v", err)
			_ = client.Close()
			delete(s.clients, client)
		}
	}

	for pos := range s.sheet.cells {
		resp := s.responseFor(pos)
		for client := range s.clients {
			if err := client.WriteJSON(resp); err != nil {
				log.Printf("broadcast write failed: %v", err)
				_ = client.Close()
				delete(s.clients, client)
			}
		}
	}
}

func (s *Server) sendInitialState(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos := range s.sheet.cells {
		if err := conn.WriteJSON(s.responseFor(pos)); err != nil {
			log.Printf("initial state write failed: %v", err)
			return
		}
	}
}

// responseFor builds the update message for one cell. Caller holds s.mu.
func (s *Server) responseFor(pos grid.Position) UpdateResponse {
	cell := s.sheet.cells[pos]
	if cell == nil {
		return UpdateResponse{Type: "cell_updated", ID: pos.String()}
	}
	return UpdateResponse{
		Type:    "cell_updated",
		ID:      pos.String(),
		Text:    cell.Text(),
		Display: formula.FormatValue(cell.Value()),
	}
}

func (s *Server) writeError(conn *websocket.Conn, id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := UpdateResponse{Type: "cell_error", ID: id, Error: msg}
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("error write failed: %v", err)
	}
}

func (s *Server) mustSetCell(id, text string) {
	if err := s.sheet.SetCell(grid.PositionFromString(id), text); err != nil {
		log.Printf("set cell %s failed: %v", id, err)
	}
}

func (s *Server) populateDemo() {
	s.mustSetCell("A1", "'Tabula")
	s.mustSetCell("A3", "10")
	s.mustSetCell("B3", "32")
	s.mustSetCell("C3", "=A3+B3")
	s.mustSetCell("A5", "=C3*2")
	s.mustSetCell("B5", "=(A5-C3)/A3")
	s.mustSetCell("A7", "=1/0")
}

// Start serves the websocket endpoint at /ws.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)

	log.Printf("Starting sheet server at http://%s", addr)
	return http.ListenAndServe(addr, mux)
}
