package mpvplayer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const (
	ipcMaxRetries  = 3
	ipcRetryDelay  = 100 * time.Millisecond
	ipcReadTimeout = 2 * time.Second
	ipcReadBufSize = 4096
)

type ipcCommand struct {
	Command []interface{} `json:"command"`
}

type ipcResponse struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

// sendCommand issues one JSON-IPC command and returns the response data.
// mpv streams unsolicited events on the same socket, so replies that carry
// no error field are skipped until the command's response arrives.
func (p *Player) sendCommand(command []interface{}) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt < ipcMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(ipcRetryDelay)
		}
		data, err := p.sendCommandOnce(command)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Player) sendCommandOnce(command []interface{}) (interface{}, error) {
	conn, err := net.Dial("unix", p.socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial mpv socket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(ipcCommand{Command: command})
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(ipcReadTimeout)); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(conn, ipcReadBufSize)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var resp ipcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Error == "" {
			// event message, not our reply
			continue
		}
		if resp.Error != "success" {
			return nil, fmt.Errorf("mpv: %s", resp.Error)
		}
		return resp.Data, nil
	}
}
