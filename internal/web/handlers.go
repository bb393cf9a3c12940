package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/local/pdfdesk/internal/ai"
	"github.com/local/pdfdesk/internal/metrics"
	"github.com/local/pdfdesk/internal/recompose"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeFailure(w, http.StatusNotImplemented, "internal", "Status checks are not configured.")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: s.deps.Status.Summary(r.Context())})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	const op = "merge"
	release, ok := s.admit(w, op)
	if !ok {
		return
	}
	defer release()

	in, err := s.readInput(w, r, "files")
	if err != nil {
		fail(w, r, op, err)
		return
	}

	start := time.Now()
	res, err := s.deps.Engine.Merge(r.Context(), in.sources)
	observe(op, start, res, err)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeResult(w, r, res)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	const op = "split"
	release, ok := s.admit(w, op)
	if !ok {
		return
	}
	defer release()

	in, err := s.readInput(w, r, "file")
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if len(in.sources) == 0 {
		fail(w, r, op, &recompose.Error{Kind: recompose.ErrInputMissing, Op: op, Message: "No file uploaded."})
		return
	}
	if len(in.sources) > 1 {
		fail(w, r, op, badRequest("Please upload a single PDF file to split.", nil))
		return
	}

	var ranges []recompose.PageRange
	if in.ranges != "" {
		if ranges, err = recompose.ParseRanges(in.ranges); err != nil {
			fail(w, r, op, err)
			return
		}
	}

	start := time.Now()
	res, err := s.deps.Engine.SplitRanges(r.Context(), in.sources[0], ranges)
	observe(op, start, res, err)
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeResult(w, r, res)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	const op = "summarize"
	if !s.aiAvailable(w) {
		return
	}
	release, ok := s.admit(w, op)
	if !ok {
		return
	}
	defer release()

	in, err := s.readInput(w, r, "file")
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if len(in.sources) != 1 {
		fail(w, r, op, &recompose.Error{Kind: recompose.ErrInputMissing, Op: op, Message: "Please upload one PDF file to summarize."})
		return
	}
	if err := s.checkTypes(op, in.sources); err != nil {
		fail(w, r, op, err)
		return
	}

	start := time.Now()
	out, err := s.deps.AI.Summarize(r.Context(), ai.Document{Name: in.sources[0].Name, Data: in.sources[0].Data})
	metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	const op = "compare"
	if !s.aiAvailable(w) {
		return
	}
	release, ok := s.admit(w, op)
	if !ok {
		return
	}
	defer release()

	in, err := s.readInput(w, r, "file1", "file2", "files")
	if err != nil {
		fail(w, r, op, err)
		return
	}
	if len(in.sources) != 2 {
		fail(w, r, op, &recompose.Error{Kind: recompose.ErrInputMissing, Op: op, Message: "Please upload two PDF files to compare."})
		return
	}
	if err := s.checkTypes(op, in.sources); err != nil {
		fail(w, r, op, err)
		return
	}

	a, b := in.sources[0], in.sources[1]
	start := time.Now()
	out, err := s.deps.AI.Compare(r.Context(), ai.Document{Name: a.Name, Data: a.Data}, ai.Document{Name: b.Name, Data: b.Data})
	metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	if err != nil {
		fail(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (s *Server) aiAvailable(w http.ResponseWriter) bool {
	if s.deps.AI == nil || !s.deps.AI.Available() {
		writeFailure(w, http.StatusServiceUnavailable, "ai_unavailable", "AI features are not configured on this server.")
		return false
	}
	return true
}

// checkTypes rejects non-PDF uploads before any text extraction.
func (s *Server) checkTypes(op string, sources []recompose.Source) error {
	if s.deps.Types == nil {
		return nil
	}
	for _, src := range sources {
		if err := s.deps.Types.RequirePDF(src.Name, src.Data); err != nil {
			return &recompose.Error{
				Kind:    recompose.ErrUnreadableSource,
				Op:      op,
				Source:  src.Name,
				Message: fmt.Sprintf("Invalid file type for %q. Only PDF files are supported.", src.Name),
				Err:     err,
			}
		}
	}
	return nil
}

func observe(op string, start time.Time, res recompose.Result, err error) {
	metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
	if err == nil {
		metrics.AddPages(op, res.Pages)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	_, kind, _ := failure(err)
	return kind
}
