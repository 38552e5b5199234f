package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/your-org/tourpipe/internal/tour"
	"github.com/your-org/tourpipe/pkg/config"
	"github.com/your-org/tourpipe/pkg/notify"
	"github.com/your-org/tourpipe/pkg/storage/objectstore"
)

type member struct {
	name string
	body string
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("create %s: %v", m.name, err)
		}
		if _, err := w.Write([]byte(m.body)); err != nil {
			t.Fatalf("write %s: %v", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []notify.Payload
	status   int
}

func (w *webhookRecorder) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var p notify.Payload
	_ = json.NewDecoder(r.Body).Decode(&p)
	w.mu.Lock()
	w.payloads = append(w.payloads, p)
	status := w.status
	w.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	rw.WriteHeader(status)
}

func (w *webhookRecorder) last(t *testing.T) notify.Payload {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.payloads) == 0 {
		t.Fatal("webhook not called")
	}
	return w.payloads[len(w.payloads)-1]
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (a *alertRecorder) PublishJSON(_ context.Context, _ string, v any, _ map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, v.(notify.Alert))
	return nil
}

type harness struct {
	store   *objectstore.Memory
	svc     *Service
	webhook *webhookRecorder
	alerts  *alertRecorder
}

func newHarness(t *testing.T, mutate func(*config.PipelineConfig)) *harness {
	t.Helper()
	cfg := config.DefaultPipeline()
	cfg.RetryBackoff = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		store:   objectstore.NewMemory(),
		webhook: &webhookRecorder{},
		alerts:  &alertRecorder{},
	}
	srv := httptest.NewServer(h.webhook)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	h.svc = NewService(Params{
		Store: h.store,
		Notifier: &notify.Notifier{
			Webhook: notify.NewWebhook(srv.URL, time.Second, logger),
			Alerter: notify.NewAlerter(h.alerts, logger),
		},
		Logger:   logger,
		Pipeline: cfg,
	})
	return h
}

func (h *harness) upload(t *testing.T, key string, data []byte) UploadEvent {
	t.Helper()
	if err := h.store.Put(context.Background(), "b", key, data, "application/zip"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	return UploadEvent{Bucket: "b", Key: key}
}

func TestProcessNestedScenario(t *testing.T) {
	h := newHarness(t, nil)
	inner := buildZip(t,
		member{name: "Web/index.htm", body: "<html><head><title>x</title></head><body></body></html>"},
		member{name: "Web/app.js", body: "console.log('tour')"},
	)
	ev := h.upload(t, "uploads/x/My Tour.zip", buildZip(t, member{name: "Web.zip", body: string(inner)}))

	res := h.svc.Process(context.Background(), ev, "inv-1")
	if !res.Success || res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.TourName != "My_Tour" || res.Structure != "nested" || res.FilesExtracted != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message != "Successfully processed tour: My Tour" {
		t.Fatalf("unexpected message %q", res.Message)
	}

	keys := h.store.Keys("b")
	want := []string{
		"processed/x/My Tour.zip",
		"tours/My_Tour/app.js",
		"tours/My_Tour/index.htm",
		"tours/My_Tour/tour-metadata.json",
	}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected objects:\n got %v\nwant %v", keys, want)
	}

	index, _ := h.store.Object("b", "tours/My_Tour/index.htm")
	if index.ContentType != "text/html" {
		t.Fatalf("index content type %q", index.ContentType)
	}
	if !strings.Contains(string(index.Data), `<base href="/h3panos/My-Tour/">`) {
		t.Fatalf("base href not injected: %s", index.Data)
	}
	if strings.Index(string(index.Data), "<base") > strings.Index(string(index.Data), "</head>") {
		t.Fatal("snippet must precede </head>")
	}
	app, _ := h.store.Object("b", "tours/My_Tour/app.js")
	if app.ContentType != "application/javascript" {
		t.Fatalf("app.js content type %q", app.ContentType)
	}

	metaObj, _ := h.store.Object("b", "tours/My_Tour/tour-metadata.json")
	meta, err := tour.DecodeMetadata(metaObj.Data)
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Structure != "nested" || meta.FilesExtracted != 2 || meta.SourceKey != ev.Key || meta.PublicPath != "/h3panos/My-Tour/" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	p := h.webhook.last(t)
	if !p.Success || p.TourName != "My_Tour" || p.FilesExtracted != 2 || p.SourceKey != ev.Key {
		t.Fatalf("unexpected webhook payload %+v", p)
	}
	if len(h.alerts.alerts) != 0 {
		t.Fatalf("no alert expected on success, got %+v", h.alerts.alerts)
	}
}

func TestProcessFlatArchive(t *testing.T) {
	h := newHarness(t, nil)
	members := []member{
		{name: "index.html", body: "<html><head></head></html>"},
		{name: "css/"},
		{name: "css/site.css", body: "body{}"},
		{name: "sub/index.html", body: "<html><head></head></html>"},
		{name: "pano/0.jpg", body: "jpegdata"},
		{name: "empty.txt", body: ""},
	}
	ev := h.upload(t, "uploads/abc/Lake House.ZIP", buildZip(t, members...))

	res := h.svc.Process(context.Background(), ev, "inv-2")
	if !res.Success || res.Structure != "flat" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FilesExtracted != 4 {
		t.Fatalf("expected 4 published files, got %d", res.FilesExtracted)
	}
	var wantBytes int64
	for _, m := range members {
		wantBytes += int64(len(m.body))
	}
	if res.TotalBytes != wantBytes {
		t.Fatalf("expected %d bytes, got %d", wantBytes, res.TotalBytes)
	}

	root, _ := h.store.Object("b", "tours/Lake_House/index.html")
	if !strings.Contains(string(root.Data), "/h3panos/Lake-House/") {
		t.Fatalf("root index not injected: %s", root.Data)
	}
	sub, _ := h.store.Object("b", "tours/Lake_House/sub/index.html")
	if string(sub.Data) != "<html><head></head></html>" {
		t.Fatalf("nested index must not be injected: %s", sub.Data)
	}
	if _, ok := h.store.Object("b", "tours/Lake_House/empty.txt"); ok {
		t.Fatal("zero-length entry must not be published")
	}
	if _, ok := h.store.Object("b", "processed/abc/Lake House.ZIP"); !ok {
		t.Fatal("source not moved to processed/")
	}
}

func TestProcessPartialPublishFailure(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			h := newHarness(t, func(c *config.PipelineConfig) { c.PublishWorkers = workers })
			var members []member
			for i := 1; i <= 10; i++ {
				members = append(members, member{name: fmt.Sprintf("f%02d.txt", i), body: "data"})
			}
			ev := h.upload(t, "uploads/x/Partial.zip", buildZip(t, members...))
			h.store.SetFault(func(op, _, key string) error {
				if op == "put" && key == "tours/Partial/f05.txt" {
					return errors.New("simulated store error")
				}
				return nil
			})

			res := h.svc.Process(context.Background(), ev, "inv-3")
			if !res.Success || res.Status != StatusSucceeded {
				t.Fatalf("partial publish must still succeed, got %+v", res)
			}
			if res.FilesExtracted != 9 || res.TotalBytes != 36 {
				t.Fatalf("expected 9 files / 36 bytes, got %d / %d", res.FilesExtracted, res.TotalBytes)
			}
			if len(res.Warnings) != 1 || res.Warnings[0].Path != "f05.txt" {
				t.Fatalf("unexpected warnings %+v", res.Warnings)
			}
			if _, ok := h.store.Object("b", "tours/Partial/tour-metadata.json"); !ok {
				t.Fatal("metadata sidecar must still be written")
			}
			p := h.webhook.last(t)
			if !p.Success || p.FilesExtracted != 9 {
				t.Fatalf("unexpected webhook payload %+v", p)
			}
		})
	}
}

func TestProcessAllPublishesFail(t *testing.T) {
	h := newHarness(t, nil)
	ev := h.upload(t, "uploads/x/Down.zip", buildZip(t, member{name: "a.txt", body: "a"}))
	h.store.SetFault(func(op, _, key string) error {
		if op == "put" && strings.HasPrefix(key, "tours/") {
			return errors.New("503 slow down")
		}
		return nil
	})

	res := h.svc.Process(context.Background(), ev, "inv-4")
	if res.Success || res.Status != StatusFailedRetryable || res.HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("expected retryable failure, got %+v", res)
	}
	if _, ok := h.store.Object("b", "failed/x/Down.zip"); !ok {
		t.Fatal("source not moved to failed/")
	}
	if len(h.alerts.alerts) != 1 || h.alerts.alerts[0].InvocationID != "inv-4" || h.alerts.alerts[0].Status != string(StatusFailedRetryable) {
		t.Fatalf("expected one alert, got %+v", h.alerts.alerts)
	}
}

func TestProcessCorruptArchive(t *testing.T) {
	h := newHarness(t, nil)
	ev := h.upload(t, "uploads/x/Broken.zip", []byte("PK but not really"))

	res := h.svc.Process(context.Background(), ev, "inv-5")
	if res.Success || res.Status != StatusFailedTerminal {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if !strings.Contains(res.Message, "corrupt archive") {
		t.Fatalf("message should describe the failure: %q", res.Message)
	}
	if _, ok := h.store.Object("b", "failed/x/Broken.zip"); !ok {
		t.Fatal("source not moved to failed/")
	}
	if keys, _ := h.store.List(context.Background(), "b", "tours/"); len(keys) != 0 {
		t.Fatalf("nothing may be published from a corrupt archive, got %v", keys)
	}
	p := h.webhook.last(t)
	if p.Success {
		t.Fatalf("webhook must report failure, got %+v", p)
	}
	if len(h.alerts.alerts) != 1 || h.alerts.alerts[0].Error == "" || h.alerts.alerts[0].Status != string(StatusFailedTerminal) {
		t.Fatalf("expected terminal alert with error detail, got %+v", h.alerts.alerts)
	}
}

func TestProcessMissingObject(t *testing.T) {
	h := newHarness(t, nil)
	res := h.svc.Process(context.Background(), UploadEvent{Bucket: "b", Key: "uploads/x/Gone.zip"}, "inv-6")
	if res.Success || res.Status != StatusFailedTerminal {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if res.SourceMove.Moved || res.SourceMove.Err == nil {
		t.Fatalf("move of a missing source must fail quietly, got %+v", res.SourceMove)
	}
}

func TestProcessRetriesTransientDownload(t *testing.T) {
	h := newHarness(t, nil)
	ev := h.upload(t, "uploads/x/Flaky.zip", buildZip(t, member{name: "a.txt", body: "a"}))
	var mu sync.Mutex
	gets := 0
	h.store.SetFault(func(op, _, _ string) error {
		if op != "get" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		gets++
		if gets < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	res := h.svc.Process(context.Background(), ev, "inv-7")
	if !res.Success {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if gets != 3 {
		t.Fatalf("expected 3 download attempts, got %d", gets)
	}
}

func TestProcessDownloadExhaustsRetries(t *testing.T) {
	h := newHarness(t, func(c *config.PipelineConfig) { c.DownloadAttempts = 2 })
	ev := h.upload(t, "uploads/x/Offline.zip", buildZip(t, member{name: "a.txt", body: "a"}))
	h.store.SetFault(func(op, _, _ string) error {
		if op == "get" {
			return errors.New("no route to host")
		}
		return nil
	})

	res := h.svc.Process(context.Background(), ev, "inv-8")
	if res.Status != StatusFailedRetryable {
		t.Fatalf("expected retryable failure, got %+v", res)
	}
}

func TestProcessSkipsForeignKeys(t *testing.T) {
	h := newHarness(t, nil)
	for _, key := range []string{
		"tours/My_Tour/index.html",
		"uploads/x/readme.txt",
		"processed/x/My Tour.zip",
		"uploads/",
	} {
		res := h.svc.Process(context.Background(), UploadEvent{Bucket: "b", Key: key}, "inv-9")
		if res.Status != StatusSkipped || !res.Skipped || res.HTTPStatus() != http.StatusOK {
			t.Fatalf("%s: expected skip, got %+v", key, res)
		}
	}
	h.webhook.mu.Lock()
	defer h.webhook.mu.Unlock()
	if len(h.webhook.payloads) != 0 {
		t.Fatal("skipped events must not notify")
	}
}

func TestProcessEmptyArchive(t *testing.T) {
	h := newHarness(t, nil)
	ev := h.upload(t, "uploads/x/Empty.zip", buildZip(t, member{name: "dir/"}))
	res := h.svc.Process(context.Background(), ev, "inv-10")
	if res.Status != StatusFailedTerminal {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if res.Message != ErrNoPublishableFiles.Error() {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestProcessIsReentrant(t *testing.T) {
	h := newHarness(t, nil)
	data := buildZip(t, member{name: "index.html", body: "<head></head>"}, member{name: "a.js", body: "1"})
	ev := h.upload(t, "uploads/x/Again.zip", data)
	first := h.svc.Process(context.Background(), ev, "inv-11")

	ev = h.upload(t, "uploads/x/Again.zip", data)
	second := h.svc.Process(context.Background(), ev, "inv-12")
	if !first.Success || !second.Success || first.FilesExtracted != second.FilesExtracted {
		t.Fatalf("re-run must match: %+v vs %+v", first, second)
	}
	index, _ := h.store.Object("b", "tours/Again/index.html")
	if strings.Count(string(index.Data), "<base ") != 1 {
		t.Fatalf("re-run must overwrite, not append: %s", index.Data)
	}
}

func TestProcessWebhookFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t, nil)
	h.webhook.status = http.StatusInternalServerError
	ev := h.upload(t, "uploads/x/Ok.zip", buildZip(t, member{name: "a.txt", body: "a"}))

	res := h.svc.Process(context.Background(), ev, "inv-13")
	if !res.Success || res.HTTPStatus() != http.StatusOK {
		t.Fatalf("webhook failure leaked into result: %+v", res)
	}
}

// cancellingStore fails operations on a done context the way a network
// client does, and cancels the invocation after a number of tour puts.
type cancellingStore struct {
	*objectstore.Memory
	mu     sync.Mutex
	puts   int
	after  int
	cancel context.CancelFunc
}

func (c *cancellingStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Memory.Put(ctx, bucket, key, data, contentType); err != nil {
		return err
	}
	if strings.HasPrefix(key, "tours/") {
		c.mu.Lock()
		c.puts++
		if c.puts == c.after {
			c.cancel()
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *cancellingStore) Copy(ctx context.Context, bucket, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Memory.Copy(ctx, bucket, src, dst)
}

func (c *cancellingStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Memory.Delete(ctx, bucket, key)
}

func TestProcessDeadlineMidPublish(t *testing.T) {
	h := newHarness(t, nil)
	var members []member
	for i := 1; i <= 11; i++ {
		members = append(members, member{name: fmt.Sprintf("f%02d.txt", i), body: "data"})
	}
	ev := h.upload(t, "uploads/x/T.zip", buildZip(t, members...))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{Memory: h.store, after: 3, cancel: cancel}
	svc := NewService(Params{
		Store:    store,
		Notifier: h.svc.notifier,
		Logger:   zaptest.NewLogger(t),
		Pipeline: h.svc.cfg,
	})

	res := svc.Process(ctx, ev, "inv-deadline")
	if res.Success || res.Status != StatusFailedRetryable || res.HTTPStatus() != http.StatusInternalServerError {
		t.Fatalf("interrupted publish must be a retryable failure, got %+v", res)
	}
	if res.FilesExtracted != 3 || !strings.Contains(res.Message, "publish interrupted") {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := h.store.Object("b", "uploads/x/T.zip"); !ok {
		t.Fatal("source must stay in place for redelivery")
	}
	for _, key := range []string{"processed/x/T.zip", "failed/x/T.zip", "tours/T/tour-metadata.json"} {
		if _, ok := h.store.Object("b", key); ok {
			t.Fatalf("%s must not exist after an aborted invocation", key)
		}
	}
	if res.SourceMove.Destination != "" {
		t.Fatalf("no move should be attempted, got %+v", res.SourceMove)
	}
	if p := h.webhook.last(t); p.Success {
		t.Fatalf("webhook must report failure, got %+v", p)
	}

	// Redelivery with a fresh budget completes the same upload.
	again := h.svc.Process(context.Background(), ev, "inv-redelivery")
	if !again.Success || again.FilesExtracted != 11 || len(again.Warnings) != 0 {
		t.Fatalf("redelivery should succeed, got %+v", again)
	}
}
