// Copyright (c) 2025 Mobile Trackpad authors
// All rights reserved. Use of this source code is governed by an
// MIT-style license that can be found in the LICENSE file.

// Command trackpad-ctl talks to a running trackpad daemon: it can send raw
// intents, watch notifications and exchange files.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
)

const usage = `usage: trackpad-ctl [--server URL] <command> [args]

commands:
  send <json>             send one raw intent over a session
  watch                   print notifications until interrupted
  upload <file>           share a file
  files                   list shared files
  download <id> <out>     fetch a shared file
  clip <text>             push host clipboard text to every session
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("trackpad-ctl", pflag.ContinueOnError)
	server := flags.StringP("server", "s", "http://localhost:9999", "daemon base URL")
	timeout := flags.Duration("timeout", 30*time.Second, "HTTP request timeout")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage); flags.PrintDefaults() }
	flags.SetInterspersed(false)
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	base, err := url.Parse(strings.TrimRight(*server, "/"))
	if err != nil {
		return fmt.Errorf("bad server URL: %w", err)
	}
	c := &client{base: base, http: &http.Client{Timeout: *timeout}, out: out}

	cmd, params := rest[0], rest[1:]
	switch cmd {
	case "send":
		if len(params) != 1 {
			return errors.New("send takes one JSON argument")
		}
		return c.send(params[0])
	case "watch":
		return c.watch()
	case "upload":
		if len(params) != 1 {
			return errors.New("upload takes one file")
		}
		return c.upload(params[0])
	case "files":
		return c.files()
	case "download":
		if len(params) != 2 {
			return errors.New("download takes an id and an output path")
		}
		return c.download(params[0], params[1])
	case "clip":
		if len(params) == 0 {
			return errors.New("clip needs text")
		}
		return c.clip(strings.Join(params, " "))
	}
	return fmt.Errorf("unknown command %q", cmd)
}

type client struct {
	base *url.URL
	http *http.Client
	out  io.Writer
}

func (c *client) url(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *client) wsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

func (c *client) dial() (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.wsURL(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("connect %s: %w", c.wsURL(), err)
	}
	var hello struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "connected" {
		conn.Close()
		return nil, "", fmt.Errorf("no greeting from server: %v", err)
	}
	return conn, hello.SessionID, nil
}

func (c *client) send(raw string) error {
	if !json.Valid([]byte(raw)) {
		return errors.New("argument is not valid JSON")
	}
	conn, _, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		return err
	}
	// report an immediate rejection, if any
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		fmt.Fprintln(c.out, string(data))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func (c *client) watch() error {
	conn, id, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(c.out, "connected as %s\n", id)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fmt.Fprintln(c.out, string(data))
	}
}

func (c *client) upload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.http.Post(c.url("/upload"), mw.FormDataContentType(), pr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.printBody(resp)
}

func (c *client) files() error {
	resp, err := c.http.Get(c.url("/files"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.printBody(resp)
	}
	var list []struct {
		ID         string `json:"id"`
		Filename   string `json:"filename"`
		Size       int64  `json:"size"`
		UploadedAt int64  `json:"uploaded_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return err
	}
	for _, f := range list {
		fmt.Fprintf(c.out, "%s  %10d  %s  %s\n", f.ID, f.Size, time.Unix(f.UploadedAt, 0).Format(time.DateTime), f.Filename)
	}
	return nil
}

func (c *client) download(id, dest string) error {
	resp, err := c.http.Get(c.url("/download/" + url.PathEscape(id)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("file %s not found or expired", id)
	}
	if resp.StatusCode != http.StatusOK {
		return c.printBody(resp)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	fmt.Fprintf(c.out, "saved %d bytes to %s\n", n, dest)
	return nil
}

func (c *client) clip(text string) error {
	body, _ := json.Marshal(map[string]string{"content": text})
	resp, err := c.http.Post(c.url("/api/clipboard"), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.printBody(resp)
}

func (c *client) printBody(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	fmt.Fprintln(c.out, strings.TrimSpace(string(data)))
	return nil
}
