// Package main is an interactive WebSocket client for poking at a room
// server by hand. Lines starting with / are commands, .quit leaves, and
// anything else is chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/observability"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:9080/room", "room server WebSocket URL")
	roomID := flag.String("room", "recroom", "room id used as the frame target")
	userID := flag.String("user", "", "user id (required)")
	username := flag.String("name", "", "display name (defaults to the user id)")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger, err := observability.NewLogger(config.LoggingConfig{Level: *level, Format: "console"})
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if *userID == "" {
		logger.Fatal("-user is required")
	}
	if *username == "" {
		*username = *userID
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, *url, nil)
	if err != nil {
		logger.Fatal("connecting", zap.String("url", *url), zap.Error(err))
	}
	defer conn.Close()

	c := &client{conn: conn, room: *roomID, userID: *userID, username: *username, logger: logger}

	go c.readLoop(stop)

	if err := c.send("roomHello", map[string]any{"userId": c.userID, "username": c.username, "version": 1}); err != nil {
		logger.Fatal("sending hello", zap.Error(err))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.leave()
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == ".quit" {
				c.leave()
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			err := c.send("room", map[string]any{"userId": c.userID, "username": c.username, "content": line})
			if err != nil {
				logger.Error("sending", zap.Error(err))
				return
			}
		}
	}
}

type client struct {
	conn     *websocket.Conn
	room     string
	userID   string
	username string
	logger   *zap.Logger
}

func (c *client) send(verb string, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	js := "{}"
	for _, k := range keys {
		var err error
		if js, err = sjson.Set(js, k, fields[k]); err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
	}
	frame := verb + "," + c.room + "," + js
	c.logger.Debug("send", zap.String("frame", frame))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *client) leave() {
	if err := c.send("roomGoodbye", map[string]any{"userId": c.userID}); err != nil {
		c.logger.Warn("sending goodbye", zap.Error(err))
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (c *client) readLoop(stop context.CancelFunc) {
	defer stop()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("connection lost", zap.Error(err))
			}
			return
		}
		c.logger.Debug("recv", zap.ByteString("frame", data))
		if text := c.render(string(data)); text != "" {
			fmt.Println(text)
		}
	}
}

// render formats a server frame for the terminal, hiding frames addressed
// to other players.
func (c *client) render(frame string) string {
	if ack, ok := strings.CutPrefix(frame, "ack,"); ok {
		return "* connected, protocol " + gjson.Get(ack, "version").Raw
	}
	parts := strings.SplitN(frame, ",", 3)
	if len(parts) < 3 {
		return frame
	}
	recipient, body := parts[1], gjson.Parse(parts[2])
	if recipient != "*" && recipient != c.userID {
		return ""
	}

	switch body.Get("type").String() {
	case "chat":
		return fmt.Sprintf("%s: %s", body.Get("username").String(), body.Get("content").String())
	case "event":
		content := body.Get("content")
		if mine := content.Get(gjson.Escape(c.userID)); mine.Exists() {
			return mine.String()
		}
		return content.Get(`\*`).String()
	case "location":
		var b strings.Builder
		fmt.Fprintf(&b, "== %s ==\n%s", body.Get("fullName").String(), body.Get("description").String())
		body.Get("exits").ForEach(func(dir, door gjson.Result) bool {
			fmt.Fprintf(&b, "\n  %s: %s", dir.String(), door.String())
			return true
		})
		return b.String()
	case "exit":
		return fmt.Sprintf("%s (exit %s)", body.Get("content").String(), body.Get("exitId").String())
	default:
		return frame
	}
}
