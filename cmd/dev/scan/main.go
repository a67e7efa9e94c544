// Command scan feeds image files through the frame scanner as if they were camera
// frames and hands the first recognized code to a running server, or to the local
// database when no server is given.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/garnizeh/triad/internal/config"
	"github.com/garnizeh/triad/internal/di"
	"github.com/garnizeh/triad/internal/logging"
	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/internal/scanner"
)

var defaultClient = &http.Client{
	Timeout: 15 * time.Second,
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to config YAML file")
		server     = flag.String("server", "", "Base URL of a running server; empty uses the local database")
		accept     = flag.Bool("accept", false, "Store the sender of a link code as a contact")
		loop       = flag.Bool("loop", false, "Cycle through the frames until stopped")
		timeout    = flag.Duration("timeout", 30*time.Second, "Give up after this long")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: scan [flags] frame.png [frame.jpg ...]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, nil)

	cam, err := scanner.LoadImageCamera(flag.Args()...)
	if err != nil {
		log.Fatal(err)
	}
	cam.Loop = *loop

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	sc := scanner.New(cam, scanner.Config{
		FPS:    cfg.Scanner.FPS,
		Logger: logger,
		OnState: func(s scanner.State, err error) {
			logger.Debug("scanner state", "state", s.String(), "error", err)
		},
	})
	sess, err := sc.Start(ctx)
	if err != nil {
		log.Fatal(err)
	}
	res, err := sess.Wait(ctx)
	if err != nil {
		sess.Stop()
		log.Fatalf("No code found: %v", err)
	}
	fmt.Printf("found %s from %s\n", res.Message.Kind(), res.Message.Sender().UserName)

	if *server != "" {
		if err := submit(ctx, *server, res.Text, *accept && res.Message.Kind() == payload.KindLink); err != nil {
			log.Fatal(err)
		}
		return
	}

	app, cleanup, err := di.InitApp(ctx, cfg, di.BuildInfo{Version: "dev"})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	if *accept && res.Message.Kind() == payload.KindLink {
		c, r, err := app.Exchange.AcceptLink(ctx, res.Text)
		if err != nil {
			log.Fatal(err)
		}
		if c == nil {
			log.Fatalf("Rejected: %s", r.Message)
		}
		fmt.Printf("contact %s stored as %s\n", c.ID, c.Relation.DisplayName())
		return
	}

	r, err := app.Exchange.ProcessMessage(ctx, res.Message)
	if err != nil {
		log.Fatal(err)
	}
	out, _ := json.MarshalIndent(r, "", "  ")
	fmt.Println(string(out))
}

// submit posts scanned text to a running server.
func submit(ctx context.Context, base, text string, accept bool) error {
	path := "/v1/codes/process"
	if accept {
		path = "/v1/links/accept"
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := defaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", resp.Status, out)
	return nil
}
