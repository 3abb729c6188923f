package agent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"PosPrint/app/relay"
)

// Server is the companion print agent. It accepts print-window connections
// from POS terminals, answers the relay protocol, and announces itself over
// mDNS so terminals without a configured relay host can find it.
type Server struct {
	port         int
	upgrader     websocket.Upgrader
	sessions     *SessionAuth
	ports        *PortManager
	printers     *PrinterManager
	mdnsShutdown chan bool
}

// NewServer creates a print agent listening on the given port.
func NewServer(port int) *Server {
	return &Server{
		port:         port,
		sessions:     NewSessionAuth(),
		ports:        NewPortManager(),
		printers:     NewPrinterManager(),
		mdnsShutdown: make(chan bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// POS terminals connect from the local network
				return true
			},
		},
	}
}

// Start serves the print window endpoint and blocks.
func (s *Server) Start() error {
	http.HandleFunc("/printwindow", s.handlePrintWindow)
	http.HandleFunc("/health", s.handleHealth)

	go s.startMDNS()
	go cleanSpoolDir(24 * time.Hour)

	log.Printf("Print agent starting on port %d", s.port)
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), nil)
}

// Stop shuts down the mDNS announcement and open ports.
func (s *Server) Stop() {
	select {
	case s.mdnsShutdown <- true:
	default:
	}
	s.ports.CloseAll()
}

// startMDNS announces the agent via mDNS/Zeroconf
func (s *Server) startMDNS() {
	server, err := zeroconf.Register(
		"Print Agent",
		relay.AgentService,
		"local.",
		s.port,
		[]string{"version=1.0"},
		nil,
	)
	if err != nil {
		log.Printf("mDNS: Failed to register service: %v", err)
		return
	}

	log.Printf("mDNS: Print agent announced on %s.local", relay.AgentService)

	<-s.mdnsShutdown
	server.Shutdown()
	log.Println("mDNS: Service announcement stopped")
}

// handleHealth handles health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handlePrintWindow upgrades the connection and runs one terminal session.
func (s *Server) handlePrintWindow(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	session := &session{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 64),
	}

	log.Printf("Terminal connected: %s", r.RemoteAddr)

	go session.writePump()
	session.sendMessage(relay.Message{A: relay.ActionInit})
	session.readPump()
}

// session is one connected POS terminal.
type session struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	cookie string
}

// readPump handles inbound requests until the connection dies.
func (c *session) readPump() {
	defer func() {
		close(c.send)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var req relay.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("Error parsing request: %v", err)
			c.sendError("malformed request")
			continue
		}

		c.handleRequest(&req)
	}
}

// writePump drains the send queue to the connection.
func (c *session) writePump() {
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleRequest dispatches one relay action.
func (c *session) handleRequest(req *relay.Request) {
	log.Printf("Request: %s", req.A)

	if req.A == relay.ActionInit {
		c.handleInitAck(req)
		return
	}

	if !c.server.sessions.Validate(req.Cookie) {
		c.sendError("unauthorized session")
		return
	}

	switch req.A {
	case relay.ActionListPrinters:
		names, err := c.server.printers.List()
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendResponse(relay.Response{Printers: names})

	case relay.ActionListPorts:
		names, err := c.server.ports.List()
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendResponse(relay.Response{Ports: names})

	case relay.ActionOpenPort:
		if req.Port == "" || req.Settings == nil {
			c.sendError("openport requires a port and serial settings")
			return
		}
		if err := c.server.ports.Open(req.Port, *req.Settings); err != nil {
			c.sendError(err.Error())
			return
		}
		ready := true
		c.sendResponse(relay.Response{Ready: &ready})

	case relay.ActionPrintRaw:
		payload, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			c.sendError("malformed print payload")
			return
		}
		if req.Port != "" {
			err = c.server.ports.Write(req.Port, payload)
		} else if req.Printer != "" {
			err = c.server.printers.PrintRaw(req.Printer, payload)
		} else {
			err = fmt.Errorf("printraw requires a port or printer")
		}
		if err != nil {
			c.sendError(err.Error())
			return
		}
		ready := true
		c.sendResponse(relay.Response{Ready: &ready})

	case relay.ActionPrintHTML:
		if req.Printer == "" {
			c.sendError("printhtml requires a printer")
			return
		}
		if err := c.server.printers.PrintHTML(req.Printer, req.Data); err != nil {
			c.sendError(err.Error())
			return
		}
		ready := true
		c.sendResponse(relay.Response{Ready: &ready})

	default:
		log.Printf("Unknown action: %s", req.A)
		c.sendError(fmt.Sprintf("unknown action %q", req.A))
	}
}

// handleInitAck completes the handshake. A terminal presenting a known
// cookie keeps it; anything else gets a fresh session.
func (c *session) handleInitAck(req *relay.Request) {
	cookie := req.Cookie
	if !c.server.sessions.Validate(cookie) {
		fresh, err := c.server.sessions.Issue()
		if err != nil {
			c.sendError("failed to establish session")
			return
		}
		cookie = fresh
	}
	c.cookie = cookie

	ready := true
	c.sendResponse(relay.Response{Ready: &ready, Cookie: &cookie})
}

func (c *session) sendResponse(resp relay.Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling response: %v", err)
		return
	}
	c.sendMessage(relay.Message{A: relay.ActionResponse, JSON: string(encoded)})
}

func (c *session) sendError(message string) {
	c.sendResponse(relay.Response{Error: &message})
}

func (c *session) sendMessage(msg relay.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Terminal send queue full, dropping message")
	}
}
