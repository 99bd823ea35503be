package access

import (
	"context"
	"testing"

	"github.com/OpenFieldOps/open-job-api/internal/store"
)

type fakeStore struct {
	store.DataStore

	jobCreators  map[int64]int64   // jobID -> creator
	jobOperators map[int64][]int64 // jobID -> operator ids
	chatMembers  map[int64][]int64 // chatID -> member ids
}

func (f *fakeStore) UserHasJobAccess(_ context.Context, userID, jobID int64) (bool, error) {
	if f.jobCreators[jobID] == userID {
		return true, nil
	}
	for _, id := range f.jobOperators[jobID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UserIsChatMember(_ context.Context, userID, chatID int64) (bool, error) {
	for _, id := range f.chatMembers[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func TestCanAccessJob(t *testing.T) {
	r := NewResolver(&fakeStore{
		jobCreators:  map[int64]int64{1: 10},
		jobOperators: map[int64][]int64{1: {20, 21}},
	})

	cases := []struct {
		name   string
		userID int64
		jobID  int64
		want   bool
	}{
		{"creator", 10, 1, true},
		{"assigned operator", 20, 1, true},
		{"other operator", 21, 1, true},
		{"outsider", 99, 1, false},
		{"unknown job", 10, 2, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.CanAccessJob(context.Background(), tc.userID, tc.jobID)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("CanAccessJob(%d, %d) = %v, want %v", tc.userID, tc.jobID, got, tc.want)
			}
		})
	}
}

func TestCanAccessChat(t *testing.T) {
	r := NewResolver(&fakeStore{
		chatMembers: map[int64][]int64{5: {10, 20}},
	})

	if ok, err := r.CanAccessChat(context.Background(), 10, 5); err != nil || !ok {
		t.Fatalf("expected member access, got ok=%v err=%v", ok, err)
	}
	if ok, err := r.CanAccessChat(context.Background(), 99, 5); err != nil || ok {
		t.Fatalf("expected non-member rejection, got ok=%v err=%v", ok, err)
	}
}
