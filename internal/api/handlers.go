package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kerim/docsync/internal/anchor"
	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/managed"
	"github.com/kerim/docsync/internal/store"
)

// handleSetContent is the content-changed event: the raw markdown buffer
// replaces the document's current text and the debounced sync pipeline takes
// it from there.
func (s *Server) handleSetContent(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		jsonError(w, "read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	doc, err := s.mgr.Document(r.Context(), docID)
	if err != nil {
		jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	doc.SetContent(string(body))

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"status": "accepted", "sync_state": doc.State()})
}

// handleGetContent returns the current in-memory buffer.
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Document(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"content": doc.Content(), "sync_state": doc.State()})
}

// handleFlush bypasses the debounce timer and reconciles synchronously.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Document(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := doc.Flush(r.Context()); err != nil {
		jsonError(w, "flush: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "flushed"})
}

// handleSuppress toggles the drag-suppression flag. The caller owns the
// buffer exclusively while set and is expected to flush after clearing it.
func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Suppressed bool `json:"suppressed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "decode body: "+err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := s.mgr.Document(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	doc.SetSuppressed(req.Suppressed)
	writeJSON(w, map[string]any{"suppressed": req.Suppressed})
}

// handleFragments parses the current buffer, managed regions carved out.
// With ?offsets=utf16 the offsets are converted for UTF-16 hosts.
func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Document(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	frags, regions := doc.Fragments()

	if r.URL.Query().Get("offsets") == "utf16" {
		om := fragment.NewOffsetMap(doc.Content())
		for i := range frags {
			frags[i].Start = om.UTF16(frags[i].Start)
			frags[i].End = om.UTF16(frags[i].End)
		}
	}

	regionInfo := make([]map[string]any, 0, len(regions))
	for _, reg := range regions {
		regionInfo = append(regionInfo, map[string]any{
			"kind":  reg.Kind,
			"title": reg.Title,
			"start": reg.Start,
			"end":   reg.End,
		})
	}
	writeJSON(w, map[string]any{"fragments": frags, "managed_regions": regionInfo})
}

// handleNodes returns the persisted nodes, ordered by sortOrder.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	nodes, err := s.st.Nodes(r.Context(), docID)
	if err != nil {
		jsonError(w, "load nodes: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if nodes == nil {
		nodes = []fragment.Node{}
	}
	writeJSON(w, map[string]any{"nodes": nodes})
}

// handleExport returns the document text. format=plain (default) strips
// anchors and managed markers from the current buffer; format=anchored
// injects identity markers into the last-synced text so a source-mode editor
// can round-trip node identity.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")

	switch r.URL.Query().Get("format") {
	case "", "plain":
		doc, err := s.mgr.Document(r.Context(), docID)
		if err != nil {
			jsonError(w, "open document: "+err.Error(), http.StatusInternalServerError)
			return
		}
		clean := managed.StripMarkers(anchor.Extract(doc.Content()).Markdown)
		writeMarkdown(w, clean)
	case "anchored":
		// Anchor offsets must agree with stored node offsets, so injection
		// runs over the last-synced content, not the live buffer.
		content, err := s.st.Content(r.Context(), docID)
		if err != nil {
			jsonError(w, "load content: "+err.Error(), http.StatusInternalServerError)
			return
		}
		nodes, err := s.st.Nodes(r.Context(), docID)
		if err != nil {
			jsonError(w, "load nodes: "+err.Error(), http.StatusInternalServerError)
			return
		}
		anchored := make([]fragment.Node, 0, len(nodes))
		for _, n := range nodes {
			if n.Managed == fragment.ManagedNone {
				anchored = append(anchored, n)
			}
		}
		writeMarkdown(w, anchor.Inject(content, anchored))
	default:
		jsonError(w, "unknown export format", http.StatusBadRequest)
	}
}

// handleNodeMetadata patches user metadata on a node. This is the only path
// that writes status, tags or word goals; the sync pipeline never touches
// them.
func (s *Server) handleNodeMetadata(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	nodeID := chi.URLParam(r, "nodeID")

	var patch store.MetaPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		jsonError(w, "decode body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.st.UpdateMetadata(r.Context(), docID, nodeID, patch); err != nil {
		jsonError(w, "update metadata: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "updated"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeMarkdown(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, s)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
