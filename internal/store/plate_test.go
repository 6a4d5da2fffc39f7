package store

import (
	"bytes"
	"testing"
	"time"
)

func TestPlateRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Plates()

	p := &Plate{
		Number:   "30F123456",
		Mode:     "in",
		Regions:  2,
		Snapshot: []byte{0xff, 0xd8, 0xff},
	}
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if p.ID == "" {
		t.Error("Create() should assign an ID")
	}
	if p.CreatedAt.IsZero() {
		t.Error("Create() should set CreatedAt")
	}

	got, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Number != p.Number || got.Mode != p.Mode || got.Regions != p.Regions {
		t.Errorf("GetByID() = %+v, want %+v", got, p)
	}
	if !bytes.Equal(got.Snapshot, p.Snapshot) {
		t.Errorf("Snapshot = %v, want %v", got.Snapshot, p.Snapshot)
	}
}

func TestPlateRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Plates()

	if _, err := repo.GetByID("nope"); err != ErrNotFound {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Latest(); err != ErrNotFound {
		t.Errorf("Latest() on empty log error = %v, want ErrNotFound", err)
	}
	if err := repo.SetSnapshotURL("nope", "s3://x"); err != ErrNotFound {
		t.Errorf("SetSnapshotURL() error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete("nope"); err != ErrNotFound {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestPlateRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Plates()

	base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	numbers := []string{"30F12345", "51G678901", "29A11111"}
	for i, n := range numbers {
		p := &Plate{Number: n, Mode: "out", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(p); err != nil {
			t.Fatalf("Create(%s) error = %v", n, err)
		}
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "all", limit: 10, want: []string{"29A11111", "51G678901", "30F12345"}},
		{name: "first page", limit: 2, want: []string{"29A11111", "51G678901"}},
		{name: "second page", limit: 2, offset: 2, want: []string{"30F12345"}},
		{name: "default limit", limit: 0, want: []string{"29A11111", "51G678901", "30F12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plates, err := repo.List(tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(plates) != len(tt.want) {
				t.Fatalf("List() returned %d plates, want %d", len(plates), len(tt.want))
			}
			for i, p := range plates {
				if p.Number != tt.want[i] {
					t.Errorf("plates[%d] = %s, want %s", i, p.Number, tt.want[i])
				}
				if p.Snapshot != nil {
					t.Error("List() should not load snapshots")
				}
			}
		})
	}

	latest, err := repo.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Number != "29A11111" {
		t.Errorf("Latest() = %s, want 29A11111", latest.Number)
	}
}

func TestPlateRepository_Snapshot(t *testing.T) {
	s := newTestStore(t)
	repo := s.Plates()

	with := &Plate{Number: "30F12345", Mode: "in", Snapshot: []byte("jpeg")}
	without := &Plate{Number: "30F12346", Mode: "in"}
	repo.Create(with)
	repo.Create(without)

	data, err := repo.Snapshot(with.ID)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("Snapshot() = %q, %v, want jpeg", data, err)
	}
	if _, err := repo.Snapshot(without.ID); err != ErrNotFound {
		t.Errorf("Snapshot() without image error = %v, want ErrNotFound", err)
	}

	if err := repo.SetSnapshotURL(with.ID, "https://bucket/plates/1.jpg"); err != nil {
		t.Fatalf("SetSnapshotURL() error = %v", err)
	}
	got, _ := repo.GetByID(with.ID)
	if got.SnapshotURL != "https://bucket/plates/1.jpg" {
		t.Errorf("SnapshotURL = %q", got.SnapshotURL)
	}
}

func TestPlateRepository_InvalidMode(t *testing.T) {
	s := newTestStore(t)

	if err := s.Plates().Create(&Plate{Number: "30F12345", Mode: "sideways"}); err == nil {
		t.Error("Create() should reject a mode outside in/out")
	}
}

func TestDeliveryRepository(t *testing.T) {
	s := newTestStore(t)

	p := &Plate{Number: "30F12345", Mode: "in"}
	if err := s.Plates().Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deliveries := s.Deliveries()
	for _, d := range []*Delivery{
		{PlateID: p.ID, Sink: "http", OK: true},
		{PlateID: p.ID, Sink: "redis", OK: false, Error: "connection refused"},
	} {
		if err := deliveries.Record(d); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if d.ID == 0 {
			t.Error("Record() should assign an ID")
		}
	}

	got, err := deliveries.ForPlate(p.ID)
	if err != nil {
		t.Fatalf("ForPlate() error = %v", err)
	}
	if len(got) != 2 || got[0].Sink != "http" || !got[0].OK || got[1].Error != "connection refused" {
		t.Errorf("ForPlate() = %+v", got)
	}

	if err := deliveries.Record(&Delivery{PlateID: "missing", Sink: "http"}); err == nil {
		t.Error("Record() for an unknown plate should violate the foreign key")
	}

	if err := s.Plates().Delete(p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, _ := deliveries.ForPlate(p.ID); len(got) != 0 {
		t.Errorf("deliveries should cascade on plate delete, got %d", len(got))
	}
}
