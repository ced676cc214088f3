package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var searchColumns = []string{
	"id", "customer_id", "subject", "status", "priority", "assigned_to",
	"created_at", "updated_at",
	"c_id", "c_email", "c_full_name", "c_avatar_url", "c_role", "c_created_at",
	"unread",
	"lm_id", "lm_sender_id", "lm_content", "lm_created_at", "lm_sender_name",
}

func TestSearchPopulatesLastMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(searchColumns).
		AddRow("T1", "u1", "Order missing", "open", "medium", "", now, now,
			"u1", "ann@example.com", "Ann", "", "customer", now,
			2,
			"M9", "u2", "On it!", now, "Agent Dana").
		AddRow("T2", "u1", "No replies yet", "open", "low", "", now, now,
			"u1", "ann@example.com", "Ann", "", "customer", now,
			0,
			nil, nil, nil, nil, nil)
	mock.ExpectQuery("FROM tickets t").WithArgs("u1", 20, 0).WillReturnRows(rows)

	repo := NewRepository(db)
	out, err := repo.Search(context.Background(), SearchFilter{}, "u1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d summaries, want 2", len(out))
	}

	lm := out[0].LastMessage
	if lm == nil {
		t.Fatal("summary with messages should carry its latest message")
	}
	if lm.ID != "M9" || lm.Content != "On it!" || lm.Sender.FullName != "Agent Dana" {
		t.Fatalf("last message = %+v, want M9 from Agent Dana", lm)
	}
	if lm.TicketID != "T1" {
		t.Fatalf("last message ticket = %q, want T1", lm.TicketID)
	}

	if out[1].LastMessage != nil {
		t.Fatalf("ticket with no messages should have a nil last message, got %+v", out[1].LastMessage)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
