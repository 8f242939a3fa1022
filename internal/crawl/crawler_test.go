package crawl

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sejmwatch/sejmaudit/internal/extract"
	"github.com/sejmwatch/sejmaudit/internal/notify"
	"github.com/sejmwatch/sejmaudit/internal/progress"
	"github.com/sejmwatch/sejmaudit/internal/results"
	"github.com/sejmwatch/sejmaudit/internal/scan"
	"github.com/sejmwatch/sejmaudit/internal/sejm"
)

type fakeAPI struct {
	processes map[int][]sejm.Process
	prints    map[string]sejm.Print
	files     map[string][]byte
	listErr   map[int]error
	printErr  map[string]error
	fileErr   map[string]error
}

func printKey(term, number int) string {
	return fmt.Sprintf("%d/%d", term, number)
}

func fileKey(term, number int, filename string) string {
	return fmt.Sprintf("%d/%d/%s", term, number, filename)
}

func (f *fakeAPI) Processes(_ context.Context, term int) ([]sejm.Process, error) {
	if err := f.listErr[term]; err != nil {
		return nil, err
	}
	return f.processes[term], nil
}

func (f *fakeAPI) Print(_ context.Context, term, number int) (sejm.Print, error) {
	if err := f.printErr[printKey(term, number)]; err != nil {
		return sejm.Print{}, err
	}
	return f.prints[printKey(term, number)], nil
}

func (f *fakeAPI) Attachment(_ context.Context, term, number int, filename string) ([]byte, error) {
	if err := f.fileErr[fileKey(term, number, filename)]; err != nil {
		return nil, err
	}
	return f.files[fileKey(term, number, filename)], nil
}

func (f *fakeAPI) AttachmentURL(term, number int, filename string) string {
	return fmt.Sprintf("https://api.example/term%d/prints/%d/%s", term, number, filename)
}

func (f *fakeAPI) ProcessURL(term int, num string) string {
	return fmt.Sprintf("https://example/Sejm%d/%s", term, num)
}

// passthroughExtractor treats the raw bytes as the logical text layer, with
// markers for the locked and panicking cases.
type passthroughExtractor struct{}

func (passthroughExtractor) Extract(_ context.Context, data []byte, _ string) extract.Content {
	text := string(data)
	switch {
	case strings.HasPrefix(text, "LOCKED"):
		return extract.Content{Locked: true, Alerts: []string{extract.LockedAlert}}
	case strings.HasPrefix(text, "PANIC"):
		panic("malformed document")
	}
	return extract.Content{Logical: text}
}

type rowCapture struct {
	mu   sync.Mutex
	rows []results.TreeRow
	done int
}

func (c *rowCapture) Append(rows ...results.TreeRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, rows...)
}

func (c *rowCapture) ProcessDone(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	return nil
}

func (c *rowCapture) Segments() int { return 0 }

func (c *rowCapture) byID(id string) (results.TreeRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.rows {
		if row.TreeID == id {
			return row, true
		}
	}
	return results.TreeRow{}, false
}

type notifyCapture struct {
	mu       sync.Mutex
	findings []notify.Finding
}

func (n *notifyCapture) Notify(_ context.Context, finding notify.Finding) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.findings = append(n.findings, finding)
	return nil
}

type emitCapture struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *emitCapture) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *emitCapture) count(stage progress.Stage) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, evt := range e.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

func testScorer() *scan.Scorer {
	return scan.NewScorer(scan.Options{
		Triggers: map[string][]string{
			"FINANSE":       {"budżet", "przetarg"},
			"WOJSKO_SLUZBY": {"kontrwywiad"},
		},
		CorrelationCategories: []string{"FINANSE", "WOJSKO_SLUZBY"},
	})
}

func newTestRunner(t *testing.T, apiClient API, sink RowSink, opts func(*Options)) *Runner {
	t.Helper()
	o := Options{
		API:       apiClient,
		Extractor: passthroughExtractor{},
		Scorer:    testScorer(),
		Writer:    sink,
		Terms:     []int{10},
		Workers:   2,
	}
	if opts != nil {
		opts(&o)
	}
	runner, err := NewRunner(o)
	require.NoError(t, err)
	return runner
}

func TestRunProducesHierarchyRows(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "101", Title: "Ustawa testowa", Prints: []int{7}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 7): {
				Number:       7,
				DocumentDate: "2024-05-01",
				Attachments:  []string{"druk.txt", "opinia.txt"},
			},
		},
		files: map[string][]byte{
			fileKey(10, 7, "druk.txt"):   []byte("zwykly dokument"),
			fileKey(10, 7, "opinia.txt"): []byte("opinia prawna"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, sink.rows, 4)
	assert.Equal(t, 1, sink.done)

	header, ok := sink.byID("I")
	require.True(t, ok)
	assert.Equal(t, "📂 [101] Ustawa testowa...", header.Display)
	assert.Equal(t, "https://example/Sejm10/101", header.Link)
	assert.Equal(t, sejm.Unknown, header.Author)

	printRow, ok := sink.byID("I.1")
	require.True(t, ok)
	assert.Equal(t, "    ├── 📁 Druk nr 7", printRow.Display)
	assert.Equal(t, "2024-05-01", printRow.FileDate)

	att, ok := sink.byID("I.1.A")
	require.True(t, ok)
	assert.Equal(t, "druk.txt", att.Filename)
	assert.Equal(t, "        └── 📄 druk.txt", att.Display)
	assert.Equal(t, 0, att.Risk)

	_, ok = sink.byID("I.1.B")
	assert.True(t, ok)
}

func TestRunZeroPrintsYieldsHeaderOnly(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "5", Title: "Proces bez drukow"}},
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, sink.rows, 1)
	assert.Equal(t, "I", sink.rows[0].TreeID)
}

func TestPrintMetadataFailureDegradesToRow(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3, 4}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 4): {Number: 4, DocumentDate: "2024-01-15"},
		},
		printErr: map[string]error{
			printKey(10, 3): errors.New("timeout"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	failedPrint, ok := sink.byID("I.1")
	require.True(t, ok)
	require.Len(t, failedPrint.Alerts, 1)
	assert.Contains(t, failedPrint.Alerts[0], "BLAD POBIERANIA METADANYCH")

	// The failure of one print does not stop the next.
	_, ok = sink.byID("I.2")
	assert.True(t, ok)
}

func TestDownloadFailureDegradesToRow(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 3): {Number: 3, Attachments: []string{"brak.pdf"}},
		},
		fileErr: map[string]error{
			fileKey(10, 3, "brak.pdf"): errors.New("503 from server"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	row, ok := sink.byID("I.1.A")
	require.True(t, ok)
	require.Len(t, row.Alerts, 1)
	assert.Contains(t, row.Alerts[0], "BLAD POBIERANIA PLIKU")
	assert.Equal(t, 0, row.Risk)
}

func TestLockedDocumentGetsFixedRisk(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 3): {Number: 3, Attachments: []string{"tajny.pdf"}},
		},
		files: map[string][]byte{
			fileKey(10, 3, "tajny.pdf"): []byte("LOCKED"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, func(o *Options) {
		o.LockedRisk = 8
	})
	require.NoError(t, runner.Run(context.Background()))

	row, ok := sink.byID("I.1.A")
	require.True(t, ok)
	assert.Equal(t, 8, row.Risk)
	assert.Contains(t, row.Alerts, extract.LockedAlert)
	assert.Empty(t, row.Words)
}

func TestHighRiskFindingIsNotified(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 3): {Number: 3, Attachments: []string{"poprawka.pdf"}},
		},
		files: map[string][]byte{
			// Both trigger words sit only in the text layer of a PDF, so the
			// layer diff fires on top of the matches.
			fileKey(10, 3, "poprawka.pdf"): []byte("budżet oraz kontrwywiad"),
		},
	}
	sink := &rowCapture{}
	notifier := &notifyCapture{}
	runner := newTestRunner(t, apiClient, sink, func(o *Options) {
		o.Notifier = notifier
		o.NotifyMinRisk = 6
	})
	require.NoError(t, runner.Run(context.Background()))

	row, ok := sink.byID("I.1.A")
	require.True(t, ok)
	assert.Equal(t, scan.MaxRisk, row.Risk)
	assert.Contains(t, row.Words, "budżet")
	assert.Contains(t, row.Words, "kontrwywiad")

	require.Len(t, notifier.findings, 1)
	assert.Equal(t, "I.1.A", notifier.findings[0].TreeID)
	assert.Equal(t, scan.MaxRisk, notifier.findings[0].Risk)
}

func TestZipAttachmentExpandsPerEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w1, err := zw.Create("pierwszy.txt")
	require.NoError(t, err)
	_, err = w1.Write([]byte("tresc pierwsza"))
	require.NoError(t, err)
	w2, err := zw.Create("drugi.txt")
	require.NoError(t, err)
	_, err = w2.Write([]byte("tresc druga"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 3): {Number: 3, Attachments: []string{"paczka.zip"}},
		},
		files: map[string][]byte{
			fileKey(10, 3, "paczka.zip"): buf.Bytes(),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	first, ok := sink.byID("I.1.A.1")
	require.True(t, ok)
	assert.Equal(t, "pierwszy.txt", first.Filename)
	_, ok = sink.byID("I.1.A.2")
	assert.True(t, ok)
}

func TestPanicInOneProcessDoesNotStopTheRun(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {
				{Number: "1", Title: "Zatruty", Prints: []int{1}},
				{Number: "2", Title: "Zdrowy", Prints: []int{2}},
			},
		},
		prints: map[string]sejm.Print{
			printKey(10, 1): {Number: 1, Attachments: []string{"zly.txt"}},
			printKey(10, 2): {Number: 2, Attachments: []string{"dobry.txt"}},
		},
		files: map[string][]byte{
			fileKey(10, 1, "zly.txt"):   []byte("PANIC"),
			fileKey(10, 2, "dobry.txt"): []byte("zwykly tekst"),
		},
	}
	sink := &rowCapture{}
	emitter := &emitCapture{}
	runner := newTestRunner(t, apiClient, sink, func(o *Options) {
		o.Progress = emitter
		o.Workers = 1
	})
	require.NoError(t, runner.Run(context.Background()))

	poisoned, ok := sink.byID("I")
	require.True(t, ok)
	assert.Contains(t, poisoned.Alerts, "BLAD KRYTYCZNY AUDYTU PROCESU")

	_, ok = sink.byID("II.1.A")
	assert.True(t, ok)
	assert.Equal(t, 1, emitter.count(progress.StageProcessError))
	assert.Equal(t, 1, emitter.count(progress.StageProcessDone))
	assert.Equal(t, 2, sink.done)
}

func TestTermListFailureSkipsTermAndReports(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "1", Title: "Proces"}},
		},
		listErr: map[int]error{
			9: errors.New("api down"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, func(o *Options) {
		o.Terms = []int{9, 10}
	})
	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "term 9")

	// Term 10 still ran.
	_, ok := sink.byID("I")
	assert.True(t, ok)
}

func TestGlobalOrdinalSpansTerms(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			9:  {{Number: "1", Title: "A"}, {Number: "2", Title: "B"}},
			10: {{Number: "3", Title: "C"}, {Number: "4", Title: "D"}},
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, func(o *Options) {
		o.Terms = []int{9, 10}
	})
	require.NoError(t, runner.Run(context.Background()))

	for _, id := range []string{"I", "II", "III", "IV"} {
		_, ok := sink.byID(id)
		assert.True(t, ok, "missing process row %s", id)
	}
	require.Len(t, sink.rows, 4)
}

func TestSnapshotCounts(t *testing.T) {
	apiClient := &fakeAPI{
		processes: map[int][]sejm.Process{
			10: {{Number: "9", Title: "Proces", Prints: []int{3}}},
		},
		prints: map[string]sejm.Print{
			printKey(10, 3): {Number: 3, Attachments: []string{"poprawka.pdf"}},
		},
		files: map[string][]byte{
			fileKey(10, 3, "poprawka.pdf"): []byte("budżet oraz kontrwywiad"),
		},
	}
	sink := &rowCapture{}
	runner := newTestRunner(t, apiClient, sink, nil)
	require.NoError(t, runner.Run(context.Background()))

	snap := runner.Snapshot()
	assert.Equal(t, runner.RunID().String(), snap.RunID)
	assert.Equal(t, int64(1), snap.ProcessesDone)
	assert.Equal(t, int64(1), snap.AttachmentsScanned)
	assert.Equal(t, int64(1), snap.HighRisk)
}
