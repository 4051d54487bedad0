package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

func TestConversationRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			conv := models.NewConversation(0, "", "  ", nil)

			if err := repo.Create(conv); err == nil {
				t.Fatal("expected validation error for empty title")
			}
		})

		t.Run("InvalidMessage", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			conv := models.NewConversation(0, "", "Bad", []models.ChatMessage{{Role: "robot", Content: "hi"}})

			if err := repo.Create(conv); err == nil {
				t.Fatal("expected validation error for unknown role")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)

			if _, err := repo.Get("nonexistent-id"); !errors.Is(err, shared.ErrConversationNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			conv := models.NewConversation(0, "", "Ghost", nil)
			conv.SetID("nonexistent-id")

			if err := repo.Update(conv); !errors.Is(err, shared.ErrConversationNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	})

	t.Run("AppendMessages", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			err := repo.AppendMessages("nonexistent-id", models.ChatMessage{Role: models.RoleUser, Content: "hi"})
			if !errors.Is(err, shared.ErrConversationNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
		})

		t.Run("Deleted", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			conv := models.NewConversation(0, "", "Gone", nil)
			if err := repo.Create(conv); err != nil {
				t.Fatalf("failed to create conversation: %v", err)
			}
			if err := repo.Delete(conv.ID()); err != nil {
				t.Fatalf("failed to delete conversation: %v", err)
			}

			if err := repo.AppendMessages(conv.ID(), models.ChatMessage{Role: models.RoleUser, Content: "hi"}); err == nil {
				t.Fatal("expected error appending to a deleted conversation")
			}
		})

		t.Run("InvalidMessage", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			if err := repo.AppendMessages("any", models.ChatMessage{Role: "", Content: "hi"}); err == nil {
				t.Fatal("expected validation error")
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("AlreadyDeleted", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			repo := NewConversationRepository(db)
			conv := models.NewConversation(0, "", "Once", nil)
			if err := repo.Create(conv); err != nil {
				t.Fatalf("failed to create conversation: %v", err)
			}
			if err := repo.Delete(conv.ID()); err != nil {
				t.Fatalf("failed to delete conversation: %v", err)
			}

			if err := repo.Delete(conv.ID()); err == nil {
				t.Fatal("expected error deleting twice")
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		repo := NewConversationRepository(db)
		if err := repo.Create(models.NewConversation(0, "", "Closed", nil)); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := repo.List(nil); err == nil {
			t.Error("expected error on closed database")
		}
	})
}

func TestJobRepositoryErrors(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		if err := repo.Create(models.NewJobRecord(0, "", "day")); err == nil {
			t.Fatal("expected validation error for empty job id")
		}

		job := models.NewJobRecord(0, "job-1", "day")
		job.SetStatus("paused")
		if err := repo.Create(job); err == nil {
			t.Fatal("expected validation error for unknown status")
		}
	})

	t.Run("DuplicateJobID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		if err := repo.Create(models.NewJobRecord(0, "job-1", "day")); err != nil {
			t.Fatalf("failed to create job: %v", err)
		}
		if err := repo.Create(models.NewJobRecord(0, "job-1", "day")); err == nil {
			t.Fatal("expected error for duplicate job id")
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewJobRepository(db)
		job := models.NewJobRecord(0, "job-1", "day")
		job.SetID("nonexistent-id")

		if err := repo.Update(job); !errors.Is(err, shared.ErrJobNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewJobRepository(db).Delete("nonexistent-id"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}
