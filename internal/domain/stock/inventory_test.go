package stock

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInventoryClient_CheckStock(t *testing.T) {
	drugID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/stock/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("qty") != "25" {
			t.Errorf("expected qty=25, got %s", r.URL.Query().Get("qty"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available": true, "on_hand": 120}`))
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	level, err := client.CheckStock(context.Background(), drugID, 25)
	if err != nil {
		t.Fatalf("CheckStock: %v", err)
	}
	if !level.Available || level.OnHand != 120 {
		t.Errorf("unexpected level: %+v", level)
	}
}

func TestInventoryClient_CheckStock_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	_, err := client.CheckStock(context.Background(), uuid.New(), 1)
	if !errors.Is(err, ErrDrugNotFound) {
		t.Errorf("expected ErrDrugNotFound, got %v", err)
	}
}

func TestInventoryClient_FindAlternative_None(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	alt, err := client.FindAlternative(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindAlternative: %v", err)
	}
	if alt != nil {
		t.Errorf("expected nil alternative, got %+v", alt)
	}
}

func TestInventoryClient_FindAlternative(t *testing.T) {
	altID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"drug_id": "` + altID.String() + `", "drug_name": "substitute"}`))
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	alt, err := client.FindAlternative(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindAlternative: %v", err)
	}
	if alt == nil || alt.DrugID != altID {
		t.Errorf("unexpected alternative: %+v", alt)
	}
}
