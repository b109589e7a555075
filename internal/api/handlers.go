package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/aggregator"
	"github.com/lokatools/marketmirror/internal/market"
)

// listingItemView is a ListedItem annotated with the resolved owner name,
// when one is known.
type listingItemView struct {
	Material  string `json:"material"`
	Price     int    `json:"price"`
	Quantity  int    `json:"quantity"`
	OwnerID   string `json:"ownerId,omitempty"`
	OwnerName string `json:"ownerName,omitempty"`
}

type listingsResponse struct {
	Kind  market.ListingKind `json:"kind"`
	Sort  string             `json:"sort"`
	Count int                `json:"count"`
	Items []listingItemView  `json:"items"`
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, ok := s.resolver.Resolve(r.Context(), name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getListings(w http.ResponseWriter, r *http.Request) {
	kind := market.ListingKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		s.writeError(w, http.StatusNotFound, "unknown listing kind")
		return
	}

	q := market.ListingQuery{
		Kind:     kind,
		Material: r.URL.Query().Get("item"),
	}

	// An owner filter arrives as a display name and must resolve to an ID
	// before the owner-scoped endpoint can be used.
	ownerName := r.URL.Query().Get("owner")
	if ownerName != "" {
		rec, ok := s.resolver.Resolve(r.Context(), ownerName)
		if !ok {
			s.writeError(w, http.StatusNotFound, "owner not found")
			return
		}
		q.OwnerID = rec.ID
		ownerName = rec.Name
	}

	items, err := s.collector.Collect(r.Context(), q)
	if err != nil {
		if errors.Is(err, market.ErrAborted) {
			s.writeError(w, http.StatusBadGateway, "upstream unavailable, try again later")
			return
		}
		s.logger.Error("listing aggregation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "listing aggregation failed")
		return
	}

	session := aggregator.NewSession(items, len(items))
	session.SetSort(aggregator.ParseSortMode(r.URL.Query().Get("sort")))
	sorted := session.Items()

	names := s.ownerNames(r.Context(), q, ownerName, sorted)
	views := make([]listingItemView, 0, len(sorted))
	for _, item := range sorted {
		views = append(views, listingItemView{
			Material:  item.Material,
			Price:     item.Price,
			Quantity:  item.Quantity,
			OwnerID:   item.OwnerID,
			OwnerName: names[item.OwnerID],
		})
	}

	s.writeJSON(w, http.StatusOK, listingsResponse{
		Kind:  kind,
		Sort:  r.URL.Query().Get("sort"),
		Count: len(views),
		Items: views,
	})
}

// ownerNames produces the ownerId-to-name map for annotation. With an owner
// filter active every item belongs to that owner, so no batch resolution is
// needed.
func (s *Server) ownerNames(
	ctx context.Context,
	q market.ListingQuery,
	ownerName string,
	items []market.ListedItem,
) map[string]string {
	if q.OwnerID != "" {
		return map[string]string{q.OwnerID: ownerName}
	}
	seen := map[string]bool{}
	var ids []string
	for _, item := range items {
		if item.OwnerID != "" && !seen[item.OwnerID] {
			seen[item.OwnerID] = true
			ids = append(ids, item.OwnerID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.resolver.ResolveNames(ctx, ids)
}

func (s *Server) triggerCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.crawling.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, "crawl already running")
		return
	}
	go func() {
		defer s.crawling.Store(false)
		// Detached from the request: the cycle outlives the HTTP exchange.
		if _, err := s.runner.RunCycle(context.Background()); err != nil {
			s.logger.Error("triggered crawl cycle failed", zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type createLinkRequest struct {
	ExternalIdentity string `json:"external_identity"`
	RecordName       string `json:"record_name"`
}

func (s *Server) createLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExternalIdentity == "" || req.RecordName == "" {
		s.writeError(w, http.StatusBadRequest, "external_identity and record_name are required")
		return
	}
	rec, ok := s.resolver.Resolve(r.Context(), req.RecordName)
	if !ok {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err := s.links.Link(req.ExternalIdentity, rec.ID); err != nil {
		if errors.Is(err, market.ErrAlreadyLinked) {
			s.writeError(w, http.StatusConflict, "identity already linked")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.links.Save(); err != nil {
		s.logger.Warn("link save failed", zap.Error(err))
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"external_identity": req.ExternalIdentity,
		"record_id":         rec.ID,
	})
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	recordID, ok := s.links.Resolve(identity)
	if !ok {
		s.writeError(w, http.StatusNotFound, "identity not linked")
		return
	}
	if rec, ok := s.records.Get(recordID); ok {
		s.writeJSON(w, http.StatusOK, rec)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"record_id": recordID})
}

func (s *Server) deleteLink(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if !s.links.Unlink(identity) {
		s.writeError(w, http.StatusNotFound, "identity not linked")
		return
	}
	if err := s.links.Save(); err != nil {
		s.logger.Warn("link save failed", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
