package cart

import "testing"

func TestInMemoryRepository_Upsert(t *testing.T) {
	repo := NewInMemoryRepository()

	item := &Item{UserID: "user-1", ProductID: "prod-1", Quantity: 2}
	if err := repo.Upsert(item); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if item.ID == "" {
		t.Fatal("Upsert() did not assign an id")
	}

	// Upserting the same (user, product) replaces the quantity instead of
	// adding a second line.
	again := &Item{UserID: "user-1", ProductID: "prod-1", Quantity: 5}
	if err := repo.Upsert(again); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}
	if again.ID != item.ID {
		t.Errorf("replacement id = %v, want original line id %v", again.ID, item.ID)
	}

	items, err := repo.ListByUser("user-1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("ListByUser() returned %d lines, want 1", len(items))
	}
	if items[0].Quantity != 5 {
		t.Errorf("Quantity = %d, want 5 (replaced, not summed)", items[0].Quantity)
	}
}

func TestInMemoryRepository_ListByUser_Isolation(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.Upsert(&Item{UserID: "user-1", ProductID: "prod-1", Quantity: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(&Item{UserID: "user-2", ProductID: "prod-1", Quantity: 3}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	items, _ := repo.ListByUser("user-1")
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Errorf("ListByUser(user-1) = %+v, want only user-1's line", items)
	}

	items, _ = repo.ListByUser("user-3")
	if len(items) != 0 {
		t.Errorf("ListByUser(user-3) returned %d lines, want 0", len(items))
	}
}

func TestInMemoryRepository_Remove(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.Upsert(&Item{UserID: "user-1", ProductID: "prod-1", Quantity: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.Remove("user-1", "prod-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	items, _ := repo.ListByUser("user-1")
	if len(items) != 0 {
		t.Errorf("cart has %d lines after Remove, want 0", len(items))
	}

	if err := repo.Remove("user-1", "prod-1"); err != ErrItemNotFound {
		t.Errorf("Remove() repeat error = %v, want %v", err, ErrItemNotFound)
	}
}

func TestInMemoryRepository_ClearUser(t *testing.T) {
	repo := NewInMemoryRepository()

	for _, pid := range []string{"p1", "p2", "p3"} {
		if err := repo.Upsert(&Item{UserID: "user-1", ProductID: pid, Quantity: 1}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if err := repo.Upsert(&Item{UserID: "user-2", ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	removed, err := repo.ClearUser("user-1")
	if err != nil {
		t.Fatalf("ClearUser() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("ClearUser() = %d, want 3", removed)
	}

	// Clearing an already-empty cart is not an error.
	removed, err = repo.ClearUser("user-1")
	if err != nil {
		t.Fatalf("ClearUser() repeat error = %v", err)
	}
	if removed != 0 {
		t.Errorf("ClearUser() repeat = %d, want 0", removed)
	}

	// Other users are untouched.
	items, _ := repo.ListByUser("user-2")
	if len(items) != 1 {
		t.Errorf("user-2 cart has %d lines, want 1", len(items))
	}
}
