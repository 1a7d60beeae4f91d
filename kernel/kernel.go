// Package kernel serves the sheet command language over the Jupyter wire
// protocol: heartbeat, shell, control, iopub, and stdin sockets, HMAC-SHA256
// signed frames. Each execute_request runs a batch of shell commands against
// one long-lived sheet and publishes their output as text/plain.
package kernel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"tabula/repl"
	"tabula/spreadsheet"
)

// ConnectionInfo holds the connection file configuration.
type ConnectionInfo struct {
	SignatureScheme string `json:"signature_scheme"`
	Transport       string `json:"transport"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	IOPubPort       int    `json:"iopub_port"`
	HBPort          int    `json:"hb_port"`
	ShellPort       int    `json:"shell_port"`
	Key             string `json:"key"`
	IP              string `json:"ip"`
}

// Header is the Jupyter message header.
type Header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Message is a decoded Jupyter protocol message.
type Message struct {
	Header       Header                 `json:"header"`
	ParentHeader Header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      map[string]interface{} `json:"content"`
}

// Kernel is the running kernel instance.
type Kernel struct {
	config   ConnectionInfo
	hb       zmq4.Socket
	shell    zmq4.Socket
	control  zmq4.Socket
	iopub    zmq4.Socket
	stdin    zmq4.Socket
	sockets  []zmq4.Socket
	shutdown chan struct{}

	sheet          *spreadsheet.Sheet
	executionCount int
	mu             sync.Mutex
}

// NewKernel creates a kernel from a Jupyter connection file.
func NewKernel(configPath string) (*Kernel, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection file: %w", err)
	}

	var config ConnectionInfo
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse connection file: %w", err)
	}

	return &Kernel{
		config:   config,
		shutdown: make(chan struct{}),
		sheet:    spreadsheet.New(),
	}, nil
}

// Start binds the ZeroMQ sockets and serves until shutdown.
func (k *Kernel) Start() error {
	log.Printf("Kernel starting on %s://%s", k.config.Transport, k.config.IP)

	ctx := context.Background()

	createSocket := func(sockType zmq4.SocketType, port int) (zmq4.Socket, error) {
		var sock zmq4.Socket
		switch sockType {
		case zmq4.Rep:
			sock = zmq4.NewRep(ctx)
		case zmq4.Router:
			sock = zmq4.NewRouter(ctx)
		case zmq4.Pub:
			sock = zmq4.NewPub(ctx)
		default:
			return nil, fmt.Errorf("unsupported socket type: %v", sockType)
		}

		addr := fmt.Sprintf("%s://%s:%d", k.config.Transport, k.config.IP, port)
		if err := sock.Listen(addr); err != nil {
			return nil, fmt.Errorf("failed to bind to %s: %w", addr, err)
		}
		return sock, nil
	}

	var err error
	k.hb, err = createSocket(zmq4.Rep, k.config.HBPort)
	if err != nil {
		return err
	}
	go k.handleHeartbeat()

	k.shell, err = createSocket(zmq4.Router, k.config.ShellPort)
	if err != nil {
		return err
	}
	k.iopub, err = createSocket(zmq4.Pub, k.config.IOPubPort)
	if err != nil {
		return err
	}
	k.control, err = createSocket(zmq4.Router, k.config.ControlPort)
	if err != nil {
		return err
	}
	k.stdin, err = createSocket(zmq4.Router, k.config.StdinPort)
	if err != nil {
		return err
	}

	k.sockets = []zmq4.Socket{k.hb, k.shell, k.control, k.iopub, k.stdin}

	log.Printf("Kernel listening: HB=%d Shell=%d IOPub=%d Control=%d Stdin=%d",
		k.config.HBPort, k.config.ShellPort, k.config.IOPubPort, k.config.ControlPort, k.config.StdinPort)

	go k.handleShell()
	go k.handleControl()

	<-k.shutdown
	return nil
}

// Stop closes all sockets and unblocks Start.
func (k *Kernel) Stop() {
	close(k.shutdown)
	for _, sock := range k.sockets {
		sock.Close()
	}
}

func (k *Kernel) handleHeartbeat() {
	for {
		msg, err := k.hb.Recv()
		if err != nil {
			return
		}
		if err := k.hb.Send(msg); err != nil {
			log.Printf("Error sending heartbeat: %v", err)
		}
	}
}

func (k *Kernel) handleShell() {
	for {
		identities, msg, err := k.receiveMessage(k.shell)
		if err != nil {
			log.Printf("Error receiving shell message: %v", err)
			continue
		}

		switch msg.Header.MsgType {
		case "kernel_info_request":
			k.handleKernelInfoRequest(k.shell, msg, identities)
		case "execute_request":
			k.handleExecuteRequest(msg, identities)
		case "shutdown_request":
			k.handleShutdownRequest(k.shell, msg, identities)
		default:
			log.Printf("Unknown shell message type: %s", msg.Header.MsgType)
		}
	}
}

func (k *Kernel) handleControl() {
	for {
		identities, msg, err := k.receiveMessage(k.control)
		if err != nil {
			log.Printf("Error receiving control message: %v", err)
			continue
		}

		switch msg.Header.MsgType {
		case "kernel_info_request":
			k.handleKernelInfoRequest(k.control, msg, identities)
		case "shutdown_request":
			k.handleShutdownRequest(k.control, msg, identities)
		default:
			log.Printf("Unknown control message type: %s", msg.Header.MsgType)
		}
	}
}

// receiveMessage reads one signed Jupyter message:
// [identities...] <IDS|MSG> <HMAC> <Header> <ParentHeader> <Metadata> <Content>
func (k *Kernel) receiveMessage(sock zmq4.Socket) ([][]byte, *Message, error) {
	msg, err := sock.Recv()
	if err != nil {
		return nil, nil, err
	}

	frames := msg.Frames
	delimiter := -1
	for i, frame := range frames {
		if string(frame) == "<IDS|MSG>" {
			delimiter = i
			break
		}
	}
	if delimiter == -1 || len(frames) < delimiter+6 {
		return nil, nil, fmt.Errorf("malformed message framing")
	}

	identities := frames[:delimiter]
	signature := string(frames[delimiter+1])
	headerBytes := frames[delimiter+2]
	parentHeaderBytes := frames[delimiter+3]
	metadataBytes := frames[delimiter+4]
	contentBytes := frames[delimiter+5]

	mac := hmac.New(sha256.New, []byte(k.config.Key))
	mac.Write(headerBytes)
	mac.Write(parentHeaderBytes)
	mac.Write(metadataBytes)
	mac.Write(contentBytes)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature != expected {
		log.Printf("Signature mismatch on %d-frame message", len(frames))
	}

	var m Message
	if err := json.Unmarshal(headerBytes, &m.Header); err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(parentHeaderBytes, &m.ParentHeader); err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(metadataBytes, &m.Metadata); err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(contentBytes, &m.Content); err != nil {
		return nil, nil, err
	}

	return identities, &m, nil
}

func (k *Kernel) sendMessage(sock zmq4.Socket, msg *Message, identities ...[]byte) error {
	header, _ := json.Marshal(msg.Header)
	parentHeader, _ := json.Marshal(msg.ParentHeader)
	metadata, _ := json.Marshal(msg.Metadata)
	content, _ := json.Marshal(msg.Content)

	mac := hmac.New(sha256.New, []byte(k.config.Key))
	mac.Write(header)
	mac.Write(parentHeader)
	mac.Write(metadata)
	mac.Write(content)
	signature := hex.EncodeToString(mac.Sum(nil))

	frames := [][]byte{
		[]byte("<IDS|MSG>"),
		[]byte(signature),
		header,
		parentHeader,
		metadata,
		content,
	}

	allFrames := make([][]byte, 0, len(identities)+len(frames))
	allFrames = append(allFrames, identities...)
	allFrames = append(allFrames, frames...)

	return sock.Send(zmq4.NewMsgFrom(allFrames...))
}

func (k *Kernel) handleKernelInfoRequest(sock zmq4.Socket, msg *Message, identities [][]byte) {
	k.publishStatus("busy", msg.Header)
	defer k.publishStatus("idle", msg.Header)

	content := map[string]interface{}{
		"protocol_version":       "5.3",
		"implementation":         "tabula-kernel",
		"implementation_version": "0.1.0",
		"language_info": map[string]interface{}{
			"name":           "tabula",
			"version":        "0.1.0",
			"mimetype":       "text/plain",
			"file_extension": ".sheet",
		},
		"banner": "Tabula Sheet Kernel",
	}

	reply := &Message{
		Header:       k.newHeader("kernel_info_reply", msg.Header.Session),
		ParentHeader: msg.Header,
		Metadata:     make(map[string]interface{}),
		Content:      content,
	}

	if err := k.sendMessage(sock, reply, identities...); err != nil {
		log.Printf("Error sending kernel info reply: %v", err)
	}
}

func (k *Kernel) handleShutdownRequest(sock zmq4.Socket, msg *Message, identities [][]byte) {
	restart, _ := msg.Content["restart"].(bool)

	reply := &Message{
		Header:       k.newHeader("shutdown_reply", msg.Header.Session),
		ParentHeader: msg.Header,
		Content: map[string]interface{}{
			"restart": restart,
		},
	}

	if err := k.sendMessage(sock, reply, identities...); err != nil {
		log.Printf("Error sending shutdown reply: %v", err)
	}
	if !restart {
		k.Stop()
	}
}

// runCode executes each non-blank line of code as a sheet command. The first
// failing line stops the batch.
func (k *Kernel) runCode(code string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out bytes.Buffer
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd := repl.ParseCommand(line)
		if _, err := repl.Execute(k.sheet, cmd, &out); err != nil {
			return "", fmt.Errorf("%s: %s", strings.TrimSpace(line), repl.ErrorMessage(err))
		}
	}
	return out.String(), nil
}

func (k *Kernel) handleExecuteRequest(msg *Message, identities [][]byte) {
	code, _ := msg.Content["code"].(string)
	k.mu.Lock()
	k.executionCount++
	execCount := k.executionCount
	k.mu.Unlock()

	k.publishStatus("busy", msg.Header)
	k.publishExecuteInput(code, execCount, msg.Header)

	result, errResult := k.runCode(code)

	if errResult != nil {
		errorContent := map[string]interface{}{
			"ename":     "Error",
			"evalue":    errResult.Error(),
			"traceback": []string{errResult.Error()},
		}

		errorMsg := &Message{
			Header:       k.newHeader("error", msg.Header.Session),
			ParentHeader: msg.Header,
			Content:      errorContent,
		}
		if err := k.sendMessage(k.iopub, errorMsg); err != nil {
			log.Printf("Error sending error message: %v", err)
		}

		reply := &Message{
			Header:       k.newHeader("execute_reply", msg.Header.Session),
			ParentHeader: msg.Header,
			Content: map[string]interface{}{
				"status":          "error",
				"execution_count": execCount,
				"ename":           "Error",
				"evalue":          errResult.Error(),
				"traceback":       []string{errResult.Error()},
			},
		}
		if err := k.sendMessage(k.shell, reply, identities...); err != nil {
			log.Printf("Error sending execute error reply: %v", err)
		}
	} else {
		if result != "" {
			resultContent := map[string]interface{}{
				"execution_count": execCount,
				"data": map[string]interface{}{
					"text/plain": result,
				},
				"metadata": map[string]interface{}{},
			}

			resultMsg := &Message{
				Header:       k.newHeader("execute_result", msg.Header.Session),
				ParentHeader: msg.Header,
				Content:      resultContent,
			}
			if err := k.sendMessage(k.iopub, resultMsg); err != nil {
				log.Printf("Error sending execute result: %v", err)
			}
		}

		reply := &Message{
			Header:       k.newHeader("execute_reply", msg.Header.Session),
			ParentHeader: msg.Header,
			Content: map[string]interface{}{
				"status":           "ok",
				"execution_count":  execCount,
				"payload":          []interface{}{},
				"user_expressions": map[string]interface{}{},
			},
		}
		if err := k.sendMessage(k.shell, reply, identities...); err != nil {
			log.Printf("Error sending execute reply: %v", err)
		}
	}

	k.publishStatus("idle", msg.Header)
}

func (k *Kernel) publishStatus(status string, parentHeader Header) {
	msg := &Message{
		Header:       k.newHeader("status", parentHeader.Session),
		ParentHeader: parentHeader,
		Content: map[string]interface{}{
			"execution_state": status,
		},
	}
	k.sendMessage(k.iopub, msg)
}

func (k *Kernel) publishExecuteInput(code string, count int, parentHeader Header) {
	msg := &Message{
		Header:       k.newHeader("execute_input", parentHeader.Session),
		ParentHeader: parentHeader,
		Content: map[string]interface{}{
			"code":            code,
			"execution_count": count,
		},
	}
	k.sendMessage(k.iopub, msg)
}

func (k *Kernel) newHeader(msgType, session string) Header {
	return Header{
		MsgID:    newUUID(),
		Username: "kernel",
		Session:  session,
		MsgType:  msgType,
		Version:  "5.3",
		Date:     time.Now().Format(time.RFC3339),
	}
}

func newUUID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
