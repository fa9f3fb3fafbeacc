package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/infrastructure/sessionstore"
	"ContractDesk/internal/ports"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	routeCtx context.Context

	upload     func(artifact *domain.UploadedArtifact, userName string) (domain.UploadResult, error)
	recent     func(userName string) ([]domain.DocumentRecord, error)
	byDocID    func(documentID, userName string) (domain.Summary, error)
	byRouteID  func(docID string) (domain.StoredSummary, error)
	regenerate func(docID string) (domain.Summary, error)
	risk       func(artifact *domain.UploadedArtifact) (domain.RawRisk, error)
}

var _ ports.BackendGateway = (*fakeGateway)(nil)

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	g.calls[op]++
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) ExtractAndSummarize(_ context.Context, artifact *domain.UploadedArtifact, userName string) (domain.UploadResult, error) {
	g.record("upload")
	return g.upload(artifact, userName)
}

func (g *fakeGateway) ListRecentDocuments(_ context.Context, userName string) ([]domain.DocumentRecord, error) {
	g.record("recent")
	return g.recent(userName)
}

func (g *fakeGateway) FetchSummaryByDocumentID(_ context.Context, documentID, userName string) (domain.Summary, error) {
	g.record("byDocID")
	return g.byDocID(documentID, userName)
}

func (g *fakeGateway) FetchSummaryByRouteID(ctx context.Context, docID string) (domain.StoredSummary, error) {
	g.record("byRouteID")
	g.mu.Lock()
	g.routeCtx = ctx
	g.mu.Unlock()
	return g.byRouteID(docID)
}

func (g *fakeGateway) RegenerateSummary(_ context.Context, docID string) (domain.Summary, error) {
	g.record("regenerate")
	return g.regenerate(docID)
}

func (g *fakeGateway) AnalyzeRisk(_ context.Context, artifact *domain.UploadedArtifact) (domain.RawRisk, error) {
	g.record("risk")
	return g.risk(artifact)
}

func pdf(name string, size int) *domain.UploadedArtifact {
	return &domain.UploadedArtifact{
		FileName: name,
		MimeType: "application/pdf",
		Content:  make([]byte, size),
	}
}

func clauses() map[string]string {
	return map[string]string{"Termination": "Either party may terminate with notice."}
}

func newTestWorkflow(gw *fakeGateway, policy ArtifactPolicy) (*Workflow, *sessionstore.Memory) {
	store := sessionstore.NewMemory()
	wf := NewWorkflow(WorkflowDeps{Gateway: gw, Store: store, Policy: policy})
	wf.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return wf, store
}

func uploadGateway() *fakeGateway {
	return &fakeGateway{
		upload: func(*domain.UploadedArtifact, string) (domain.UploadResult, error) {
			return domain.UploadResult{DocumentID: "d1", Summary: domain.Summary{Text: "S", KeyClauses: clauses()}}, nil
		},
	}
}

func TestSelectRejectsNonPDF(t *testing.T) {
	t.Parallel()

	wf, store := newTestWorkflow(&fakeGateway{}, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("first.pdf", 10)); err != nil {
		t.Fatalf("select pdf: %v", err)
	}
	before, _ := store.Get(ctx)

	for _, mimeType := range []string{"image/png", "text/plain", "", "application/pdfx"} {
		artifact := &domain.UploadedArtifact{FileName: "x", MimeType: mimeType, Content: []byte("x")}
		err := wf.Select(ctx, artifact)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("mime %q: expected validation error, got %v", mimeType, err)
		}
	}

	after, _ := store.Get(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("session changed after rejected selection:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestSelectAcceptsPDFWithParameters(t *testing.T) {
	t.Parallel()

	wf, store := newTestWorkflow(&fakeGateway{}, KeepArtifact)
	ctx := context.Background()

	artifact := &domain.UploadedArtifact{FileName: "a.pdf", MimeType: "Application/PDF; charset=binary", Content: []byte("%PDF")}
	if err := wf.Select(ctx, artifact); err != nil {
		t.Fatalf("select: %v", err)
	}
	session, _ := store.Get(ctx)
	if session.UploadedArtifact == nil || session.UploadedArtifact.Handle == "" {
		t.Fatalf("expected stored artifact with handle, got %+v", session.UploadedArtifact)
	}
	if session.UploadedArtifact.SizeBytes != 4 {
		t.Fatalf("unexpected size %d", session.UploadedArtifact.SizeBytes)
	}
}

func TestUploadThenFastPathHydration(t *testing.T) {
	t.Parallel()

	gw := uploadGateway()
	wf, store := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("lease.pdf", 12800)); err != nil {
		t.Fatalf("select: %v", err)
	}
	nav, err := wf.Upload(ctx, "alice")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if nav.Path != "/summary/alice/d1" {
		t.Fatalf("unexpected path %q", nav.Path)
	}
	if wf.Snapshot().DocumentState != StateSummarized {
		t.Fatalf("expected summarized, got %s", wf.Snapshot().DocumentState)
	}

	want := SummaryView{
		DocumentID: "d1",
		Document:   DocumentInfo{Title: "lease.pdf", Type: "pdf", FileSize: "12.50 KB"},
		Summary:    domain.Summary{Text: "S", KeyClauses: clauses()},
	}
	if !reflect.DeepEqual(*nav.State, want) {
		t.Fatalf("unexpected carried state:\n got %+v\nwant %+v", *nav.State, want)
	}

	calls := gw.total()
	hydrated, err := wf.EnterSummaryView(ctx, "alice", "d1", nav.State)
	if err != nil {
		t.Fatalf("enter summary view: %v", err)
	}
	if gw.total() != calls {
		t.Fatalf("fast path issued %d network calls", gw.total()-calls)
	}
	if !reflect.DeepEqual(*hydrated.State, want) {
		t.Fatalf("fast path view mismatch: %+v", *hydrated.State)
	}

	session, _ := store.Get(ctx)
	if session.ActiveDocument == nil || session.ActiveDocument.ID != "d1" {
		t.Fatalf("active document not stored: %+v", session.ActiveDocument)
	}
	if session.UploadedArtifact == nil {
		t.Fatal("artifact should stay attached after upload")
	}
}

func TestDurableHydrationMatchesFastPath(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		byRouteID: func(docID string) (domain.StoredSummary, error) {
			if docID != "d1" {
				t.Errorf("unexpected doc id %q", docID)
			}
			return domain.StoredSummary{
				Summary:  domain.Summary{Text: "S", KeyClauses: clauses()},
				FileName: "lease.pdf",
				FileType: "pdf",
				FileSize: "12.50 KB",
			}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	nav, err := wf.EnterSummaryView(context.Background(), "alice", "d1", nil)
	if err != nil {
		t.Fatalf("durable hydration: %v", err)
	}

	want := SummaryView{
		DocumentID: "d1",
		Document:   DocumentInfo{Title: "lease.pdf", Type: "pdf", FileSize: "12.50 KB"},
		Summary:    domain.Summary{Text: "S", KeyClauses: clauses()},
	}
	if !reflect.DeepEqual(*nav.State, want) {
		t.Fatalf("durable view mismatch:\n got %+v\nwant %+v", *nav.State, want)
	}
	if gw.count("byRouteID") != 1 {
		t.Fatalf("expected one fetch, got %d", gw.count("byRouteID"))
	}
}

func TestDurableHydrationDefaults(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		byRouteID: func(string) (domain.StoredSummary, error) {
			return domain.StoredSummary{Summary: domain.Summary{Text: "S"}, FileName: "x.pdf"}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	nav, err := wf.EnterSummaryView(context.Background(), "alice", "7", nil)
	if err != nil {
		t.Fatalf("durable hydration: %v", err)
	}
	if nav.State.Document.Type != "pdf" || nav.State.Document.FileSize != "Unknown" {
		t.Fatalf("unexpected defaults: %+v", nav.State.Document)
	}
}

func TestCarriedStateForOtherDocumentIsIgnored(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		byRouteID: func(string) (domain.StoredSummary, error) {
			return domain.StoredSummary{Summary: domain.Summary{Text: "durable"}}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	carried := &SummaryView{DocumentID: "d1", Summary: domain.Summary{Text: "carried"}}
	nav, err := wf.EnterSummaryView(context.Background(), "alice", "d2", carried)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if nav.State.Summary.Text != "durable" || gw.count("byRouteID") != 1 {
		t.Fatalf("expected durable fetch, got %+v", nav.State)
	}
}

func TestDurableHydrationFailureRedirectsHome(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		byRouteID: func(string) (domain.StoredSummary, error) {
			return domain.StoredSummary{}, domain.NewError(domain.KindNotFound, domain.OpHydrate, "document not found")
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	nav, err := wf.EnterSummaryView(context.Background(), "alice", "missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if nav.Path != "/home/alice" || nav.Notice != HydrationFailedNotice || nav.State != nil {
		t.Fatalf("unexpected navigation %+v", nav)
	}
	if wf.Snapshot().DocumentState != StateIdle {
		t.Fatalf("state should stay idle, got %s", wf.Snapshot().DocumentState)
	}
}

func TestDurableHydrationOfOtherDocumentDetachesArtifact(t *testing.T) {
	t.Parallel()

	gw := uploadGateway()
	gw.byRouteID = func(string) (domain.StoredSummary, error) {
		return domain.StoredSummary{Summary: domain.Summary{Text: "old"}, FileName: "old.pdf"}, nil
	}
	wf, store := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("new.pdf", 10)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := wf.EnterSummaryView(ctx, "alice", "d1", nil); err != nil {
		t.Fatalf("reload same doc: %v", err)
	}
	session, _ := store.Get(ctx)
	if session.UploadedArtifact == nil {
		t.Fatal("reloading the active document must keep the artifact")
	}

	if _, err := wf.EnterSummaryView(ctx, "alice", "d0", nil); err != nil {
		t.Fatalf("hydrate other doc: %v", err)
	}
	session, _ = store.Get(ctx)
	if session.UploadedArtifact != nil {
		t.Fatal("artifact should be detached after switching documents")
	}
	if session.ActiveDocument == nil || session.ActiveDocument.ID != "d0" {
		t.Fatalf("active document not switched: %+v", session.ActiveDocument)
	}
	if _, err := wf.AnalyzeRisk(ctx); !errors.Is(err, domain.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
}

func TestConcurrentDurableHydrationIsCollapsed(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw := &fakeGateway{
		byRouteID: func(string) (domain.StoredSummary, error) {
			once.Do(func() { close(entered) })
			<-release
			return domain.StoredSummary{Summary: domain.Summary{Text: "S"}}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := wf.EnterSummaryView(ctx, "alice", "d1", nil)
		errs <- err
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := wf.EnterSummaryView(ctx, "alice", "d1", nil)
		errs <- err
	}()
	// Give the second caller time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("hydrate: %v", err)
		}
	}
	if gw.count("byRouteID") != 1 {
		t.Fatalf("expected a single backend fetch, got %d", gw.count("byRouteID"))
	}
}

func TestDurableFetchOutlivesCallerCancellation(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		byRouteID: func(string) (domain.StoredSummary, error) {
			return domain.StoredSummary{Summary: domain.Summary{Text: "S"}}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := wf.EnterSummaryView(ctx, "alice", "d1", nil); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	cancel()

	gw.mu.Lock()
	fetchCtx := gw.routeCtx
	gw.mu.Unlock()
	if fetchCtx == nil || fetchCtx.Err() != nil {
		t.Fatalf("shared fetch context was cancelled with its first caller: %v", fetchCtx)
	}
}

func TestUploadPreconditionsAndFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		upload: func(*domain.UploadedArtifact, string) (domain.UploadResult, error) {
			return domain.UploadResult{}, domain.BackendError(domain.OpUpload, 500, "boom")
		},
	}
	wf, store := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if _, err := wf.Upload(ctx, "alice"); !errors.Is(err, domain.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
	if gw.total() != 0 {
		t.Fatalf("precondition failure issued %d calls", gw.total())
	}

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	_, err := wf.Upload(ctx, "alice")
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if domain.UserMessage(err) != "Error analyzing the contract." {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
	if wf.Snapshot().DocumentState != StateIdle {
		t.Fatalf("expected idle after failure, got %s", wf.Snapshot().DocumentState)
	}
	session, _ := store.Get(ctx)
	if session.ActiveDocument != nil {
		t.Fatalf("failed upload stored a document: %+v", session.ActiveDocument)
	}
}

func TestUploadRejectedWhileInFlight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		upload: func(*domain.UploadedArtifact, string) (domain.UploadResult, error) {
			close(entered)
			<-release
			return domain.UploadResult{DocumentID: "d1", Summary: domain.Summary{Text: "S"}}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()
	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := wf.Upload(ctx, "alice")
		done <- err
	}()
	<-entered

	if _, err := wf.Upload(ctx, "alice"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if wf.Snapshot().DocumentState != StateUploading {
		t.Fatalf("expected uploading, got %s", wf.Snapshot().DocumentState)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if gw.count("upload") != 1 {
		t.Fatalf("expected one upload call, got %d", gw.count("upload"))
	}
}

func TestRegenerateWithoutDocumentIssuesNoCalls(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	_, err := wf.Regenerate(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if domain.UserMessage(err) != "Document ID is missing. Please try again." {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
	if _, err := wf.Regenerate(context.Background(), "d1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state without an active document, got %v", err)
	}
	if gw.total() != 0 {
		t.Fatalf("expected zero network calls, got %d", gw.total())
	}
}

func TestRegenerateReplacesSummary(t *testing.T) {
	t.Parallel()

	gw := uploadGateway()
	gw.regenerate = func(docID string) (domain.Summary, error) {
		return domain.Summary{Text: "fresh", KeyClauses: map[string]string{"Payment": "Net 30"}}, nil
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	view, err := wf.Regenerate(ctx, "d1")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	want := map[string]string{"Payment": "Net 30"}
	if view.Summary.Text != "fresh" || !reflect.DeepEqual(view.Summary.KeyClauses, want) {
		t.Fatalf("summary not replaced wholesale: %+v", view.Summary)
	}
	if snap := wf.Snapshot(); snap.DocumentState != StateSummarized || snap.View.Summary.Text != "fresh" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRegenerateFailureKeepsSummary(t *testing.T) {
	t.Parallel()

	gw := uploadGateway()
	gw.regenerate = func(string) (domain.Summary, error) {
		return domain.Summary{}, domain.NetworkError(domain.OpRegenerate, context.DeadlineExceeded)
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	view, err := wf.Regenerate(ctx, "d1")
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if view.Summary.Text != "S" {
		t.Fatalf("summary should be unchanged, got %q", view.Summary.Text)
	}
	if wf.Snapshot().DocumentState != StateSummarized {
		t.Fatalf("expected summarized, got %s", wf.Snapshot().DocumentState)
	}
}

func TestRegenerateDiscardsStaleResponse(t *testing.T) {
	t.Parallel()

	entered := make(chan int, 2)
	releases := []chan struct{}{make(chan struct{}), make(chan struct{})}
	var mu sync.Mutex
	issued := 0

	gw := uploadGateway()
	gw.regenerate = func(string) (domain.Summary, error) {
		mu.Lock()
		n := issued
		issued++
		mu.Unlock()
		entered <- n
		<-releases[n]
		if n == 0 {
			return domain.Summary{Text: "response 1"}, nil
		}
		return domain.Summary{Text: "response 2"}, nil
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	type outcome struct {
		view SummaryView
		err  error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		v, err := wf.Regenerate(ctx, "d1")
		first <- outcome{v, err}
	}()
	<-entered

	go func() {
		v, err := wf.Regenerate(ctx, "d1")
		second <- outcome{v, err}
	}()
	<-entered

	close(releases[1])
	got2 := <-second
	if got2.err != nil || got2.view.Summary.Text != "response 2" {
		t.Fatalf("second regenerate: %+v", got2)
	}
	if wf.Snapshot().DocumentState != StateSummarized {
		t.Fatalf("latest request done, expected summarized, got %s", wf.Snapshot().DocumentState)
	}

	close(releases[0])
	got1 := <-first
	if !errors.Is(got1.err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", got1.err)
	}
	if got1.view.Summary.Text != "response 2" {
		t.Fatalf("stale caller should see current view, got %q", got1.view.Summary.Text)
	}
	if snap := wf.Snapshot(); snap.View.Summary.Text != "response 2" {
		t.Fatalf("stale response applied: %q", snap.View.Summary.Text)
	}
}

func TestRegenerateRejectsInactiveDocument(t *testing.T) {
	t.Parallel()

	gw := uploadGateway()
	gw.regenerate = func(string) (domain.Summary, error) {
		return domain.Summary{Text: "fresh"}, nil
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	_, err := wf.Regenerate(ctx, "99")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if domain.UserMessage(err) != "This summary is no longer open. Please reload the page." {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
	if gw.count("regenerate") != 0 {
		t.Fatalf("expected no regenerate call, got %d", gw.count("regenerate"))
	}
	if snap := wf.Snapshot(); snap.View.DocumentID != "d1" || snap.View.Summary.Text != "S" {
		t.Fatalf("active view changed: %+v", snap.View)
	}
}

func TestRegenerateDiscardsOlderResponseAfterNewerFailure(t *testing.T) {
	t.Parallel()

	entered := make(chan int, 2)
	releases := []chan struct{}{make(chan struct{}), make(chan struct{})}
	var mu sync.Mutex
	issued := 0

	gw := uploadGateway()
	gw.regenerate = func(string) (domain.Summary, error) {
		mu.Lock()
		n := issued
		issued++
		mu.Unlock()
		entered <- n
		<-releases[n]
		if n == 0 {
			return domain.Summary{Text: "response 1"}, nil
		}
		return domain.Summary{}, domain.BackendError(domain.OpRegenerate, 500, "boom")
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := wf.Upload(ctx, "alice"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() {
		_, err := wf.Regenerate(ctx, "d1")
		first <- err
	}()
	<-entered
	go func() {
		_, err := wf.Regenerate(ctx, "d1")
		second <- err
	}()
	<-entered

	close(releases[1])
	if err := <-second; !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error from latest request, got %v", err)
	}

	close(releases[0])
	if err := <-first; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}
	snap := wf.Snapshot()
	if snap.View.Summary.Text != "S" {
		t.Fatalf("superseded response applied: %q", snap.View.Summary.Text)
	}
	if snap.DocumentState != StateSummarized {
		t.Fatalf("expected summarized, got %s", snap.DocumentState)
	}
}

func TestAnalyzeRiskWithoutArtifactIssuesNoCalls(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	wf, _ := newTestWorkflow(gw, KeepArtifact)

	_, err := wf.AnalyzeRisk(context.Background())
	if !errors.Is(err, domain.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact, got %v", err)
	}
	if domain.UserMessage(err) != "Please upload a document first." {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
	if gw.total() != 0 {
		t.Fatalf("expected zero network calls, got %d", gw.total())
	}
}

const nestedRisk = `{"risk_analysis": {"overallRiskScore": 62.5, "risk_category": "medium",
	"risk_scores": {"Termination": 3}, "relevant_sentences": {"Termination": ["clause text"]}}}`

func TestAnalyzeRiskPolicies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		policy       ArtifactPolicy
		keepArtifact bool
	}{
		{name: "keep", policy: KeepArtifact, keepArtifact: true},
		{name: "clear", policy: ClearAfterRisk, keepArtifact: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gw := &fakeGateway{
				risk: func(*domain.UploadedArtifact) (domain.RawRisk, error) {
					return domain.RawRisk(nestedRisk), nil
				},
			}
			wf, store := newTestWorkflow(gw, tc.policy)
			ctx := context.Background()

			if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
				t.Fatalf("select: %v", err)
			}
			assessment, err := wf.AnalyzeRisk(ctx)
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if assessment.OverallScore != 62.5 || assessment.Category != "medium" {
				t.Fatalf("unexpected assessment %+v", assessment)
			}
			snap := wf.Snapshot()
			if snap.RiskState != StateRiskReady || snap.Risk == nil {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			session, _ := store.Get(ctx)
			if (session.UploadedArtifact != nil) != tc.keepArtifact {
				t.Fatalf("artifact present = %v, want %v", session.UploadedArtifact != nil, tc.keepArtifact)
			}
		})
	}
}

func TestAnalyzeRiskFailureRestoresState(t *testing.T) {
	t.Parallel()

	fail := true
	gw := &fakeGateway{
		risk: func(*domain.UploadedArtifact) (domain.RawRisk, error) {
			if fail {
				return nil, domain.BackendError(domain.OpAnalyzeRisk, 500, "boom")
			}
			return domain.RawRisk(nestedRisk), nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()
	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}

	if _, err := wf.AnalyzeRisk(ctx); !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if wf.Snapshot().RiskState != StateIdle {
		t.Fatalf("expected idle, got %s", wf.Snapshot().RiskState)
	}

	fail = false
	if _, err := wf.AnalyzeRisk(ctx); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	fail = true
	if _, err := wf.AnalyzeRisk(ctx); err == nil {
		t.Fatal("expected error")
	}
	if wf.Snapshot().RiskState != StateRiskReady {
		t.Fatalf("expected previous risk_ready state, got %s", wf.Snapshot().RiskState)
	}
}

func TestAnalyzeRiskUnknownPayload(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		risk: func(*domain.UploadedArtifact) (domain.RawRisk, error) {
			return domain.RawRisk(`{"unexpected": true}`), nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()
	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}
	_, err := wf.AnalyzeRisk(ctx)
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if domain.UserMessage(err) != "Failed to analyze document." {
		t.Fatalf("unexpected message %q", domain.UserMessage(err))
	}
}

func TestResetDiscardsInFlightUpload(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		upload: func(*domain.UploadedArtifact, string) (domain.UploadResult, error) {
			close(entered)
			<-release
			return domain.UploadResult{DocumentID: "d1", Summary: domain.Summary{Text: "S"}}, nil
		},
	}
	wf, store := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()
	if err := wf.Select(ctx, pdf("a.pdf", 1)); err != nil {
		t.Fatalf("select: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := wf.Upload(ctx, "alice")
		done <- err
	}()
	<-entered

	if err := wf.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}

	session, _ := store.Get(ctx)
	if session.ActiveDocument != nil || session.UploadedArtifact != nil {
		t.Fatalf("session not empty after reset: %+v", session)
	}
	snap := wf.Snapshot()
	if snap.DocumentState != StateIdle || snap.RiskState != StateIdle || snap.View != nil {
		t.Fatalf("unexpected snapshot after reset: %+v", snap)
	}
}

func TestHomeViewReadsGoThroughGateway(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		recent: func(userName string) ([]domain.DocumentRecord, error) {
			return []domain.DocumentRecord{{ID: "1", Title: "lease.pdf"}}, nil
		},
		byDocID: func(documentID, userName string) (domain.Summary, error) {
			if documentID != "1" || userName != "alice" {
				t.Errorf("unexpected args %q %q", documentID, userName)
			}
			return domain.Summary{Text: "S"}, nil
		},
	}
	wf, _ := newTestWorkflow(gw, KeepArtifact)
	ctx := context.Background()

	docs, err := wf.RecentDocuments(ctx, "alice")
	if err != nil || len(docs) != 1 {
		t.Fatalf("recent documents: %v %v", docs, err)
	}
	summary, err := wf.DocumentSummary(ctx, "alice", "1")
	if err != nil || summary.Text != "S" {
		t.Fatalf("document summary: %+v %v", summary, err)
	}
}
