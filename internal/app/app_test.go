package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/pitwall/internal/app"
	"github.com/MrWong99/pitwall/internal/config"
	"github.com/MrWong99/pitwall/internal/discord"
	"github.com/MrWong99/pitwall/internal/discord/mock"
	"github.com/MrWong99/pitwall/internal/observe"
	"github.com/MrWong99/pitwall/internal/openf1"
)

const channelID = "1187654321098765432"

// openF1Server serves records on /team_radio, filtered by driver_number, and
// a clip at /clip.mp3. Every record links to the server's own clip with a
// distinct query string, since the recording URL is the record's identity.
func openF1Server(t *testing.T, drivers ...int) *httptest.Server {
	t.Helper()
	clip := bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 1024)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clip.mp3", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(clip)
	})
	mux.HandleFunc("GET /team_radio", func(w http.ResponseWriter, r *http.Request) {
		want, _ := strconv.Atoi(r.URL.Query().Get("driver_number"))
		var records []openf1.RadioRecord
		for i, d := range drivers {
			if want != 0 && d != want {
				continue
			}
			records = append(records, openf1.RadioRecord{
				SessionKey:   9158,
				MeetingKey:   1219,
				DriverNumber: d,
				Date:         time.Date(2023, 9, 15, 9, 40, i, 0, time.UTC).Format(time.RFC3339),
				RecordingURL: srv.URL + "/clip.mp3?n=" + strconv.Itoa(i),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Discord:  config.DiscordConfig{Token: "test-token", ChannelID: channelID},
		OpenF1:   config.OpenF1Config{BaseURL: baseURL},
		Poll:     config.PollConfig{Interval: time.Hour},
		Download: config.DownloadConfig{TempDir: t.TempDir()},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_RequiresSender(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for nil sender")
	}
}

func TestNew_BadListenAddr(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Server.ListenAddr = "no-port"
	_, err := app.New(context.Background(), cfg, &mock.Sender{}, app.WithMetrics(testMetrics(t)))
	if err == nil {
		t.Fatal("expected error for unusable listen address")
	}
}

func TestNew_OpsDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Server.ListenAddr = "off"
	a, err := app.New(context.Background(), cfg, &mock.Sender{}, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if addr := a.OpsAddr(); addr != nil {
		t.Errorf("OpsAddr = %v, want nil", addr)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_PostsNewRadioAndServesOps(t *testing.T) {
	t.Parallel()

	srv := openF1Server(t, 44, 1)
	cfg := testConfig(t, srv.URL)
	sender := &mock.Sender{}

	a, err := app.New(context.Background(), cfg, sender,
		app.WithHTTPClient(srv.Client()),
		app.WithMetrics(testMetrics(t)),
		app.WithReadiness(healthyDiscord()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "two radio posts", func() bool { return len(sender.EmbedPosts()) == 2 })

	for i, p := range sender.EmbedPosts() {
		if p.ChannelID != channelID {
			t.Errorf("post %d channel = %q, want %q", i, p.ChannelID, channelID)
		}
		if len(p.Files) != 1 {
			t.Errorf("post %d files = %v, want one attachment", i, p.Files)
		}
		if p.Content != config.DefaultAnnouncement {
			t.Errorf("post %d content = %q", i, p.Content)
		}
	}
	if got := sender.EmbedPosts()[0].Files[0]; got != "radio_driver_44.mp3" {
		t.Errorf("first attachment = %q, want oldest clip first", got)
	}
	if got := sender.EmbedPosts()[1].Files[0]; got != "radio_driver_1.mp3" {
		t.Errorf("second attachment = %q, want the other driver's clip", got)
	}

	base := "http://" + a.OpsAddr().String()
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	entries, err := os.ReadDir(cfg.Download.TempDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temp files left after delivery", len(entries))
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRegisterCommands(t *testing.T) {
	t.Parallel()

	srv := openF1Server(t, 44, 1, 44)
	cfg := testConfig(t, srv.URL)
	cfg.Server.ListenAddr = "off"
	sender := &mock.Sender{}

	a, err := app.New(context.Background(), cfg, sender,
		app.WithHTTPClient(srv.Client()),
		app.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	router := discord.NewCommandRouter(discord.DefaultPrefix, nil)
	a.RegisterCommands(router)

	want := map[string]bool{
		"radio": true, "latest_radio": true, "driver_radio": true,
		"test_audio": true, "help_radio": true, "radio_status": true,
	}
	for _, c := range router.Commands() {
		delete(want, c.Name)
	}
	if len(want) != 0 {
		t.Errorf("commands not registered: %v", want)
	}

	router.HandleMessage(context.Background(), sender, &discordgo.Message{
		ChannelID: "555",
		Content:   "!driver_radio 44",
		Author:    &discordgo.User{ID: "1"},
	})

	posts := sender.EmbedPosts()
	if len(posts) != 2 {
		t.Fatalf("embed posts = %d, want 2 clips for driver 44", len(posts))
	}
	for _, p := range posts {
		if p.ChannelID != "555" {
			t.Errorf("reply channel = %q, want the invoking channel", p.ChannelID)
		}
		if len(p.Files) != 1 || p.Files[0] != "radio_driver_44.mp3" {
			t.Errorf("files = %v", p.Files)
		}
	}

	router.HandleMessage(context.Background(), sender, &discordgo.Message{
		ChannelID: "555",
		Content:   "!radio_status",
		Author:    &discordgo.User{ID: "1"},
	})
	status := sender.LastPost()
	if status == nil || len(status.Embeds) != 1 {
		t.Fatalf("status reply = %+v, want one embed", status)
	}
	var delivered string
	for _, f := range status.Embeds[0].Fields {
		if f.Name == "Delivered" {
			delivered = f.Value
		}
	}
	if delivered != "2 attached, 0 linked, 0 failed" {
		t.Errorf("Delivered = %q", delivered)
	}
}

func TestReadyz_ReportsFailingChecker(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := app.New(context.Background(), cfg, &mock.Sender{},
		app.WithMetrics(testMetrics(t)),
		app.WithReadiness(discordDown()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	a.OpsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("gateway not ready")) {
		t.Errorf("body = %s, want the failing check", rec.Body.String())
	}
}
