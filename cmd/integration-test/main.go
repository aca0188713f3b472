// Integration test against a live sync server.
//
// Prerequisites:
//   - A sync server reachable at SLIDESYNC_SERVER_URL, for example the
//     companion relay: go run ./cmd/slidesync relay --presenter-token dev-token
//   - SLIDESYNC_SESSION set to a presenter session token the server accepts
//
// Usage:
//
//	SLIDESYNC_SERVER_URL=http://localhost:3030 SLIDESYNC_SESSION=dev-token \
//	  go run ./cmd/integration-test
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	slidesync "github.com/slidesync/slidesync-go"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	passed := 0
	failed := 0

	serverURL := os.Getenv("SLIDESYNC_SERVER_URL")
	session := os.Getenv("SLIDESYNC_SESSION")
	if serverURL == "" || session == "" {
		log.Fatal("SLIDESYNC_SERVER_URL and SLIDESYNC_SESSION must be set")
	}

	fmt.Println("=== slidesync Integration Test ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	onError := slidesync.LogErrors(slog.Default())

	// --- Test 1: Presenter connects ---
	fmt.Println("[Test 1] Presenter connects...")

	presenter, err := slidesync.NewClient(slidesync.Config{
		ServerURL:    serverURL,
		Role:         slidesync.RolePresenter,
		SessionToken: session,
	}, onError)
	if err != nil {
		log.Fatalf("  FAIL: NewClient(presenter): %v", err)
	}
	defer presenter.Close()

	if err := presenter.Connect(ctx, nil); err != nil {
		log.Fatalf("  FAIL: presenter.Connect(): %v", err)
	}
	if err := presenter.WaitConnected(ctx); err != nil {
		log.Fatalf("  FAIL: presenter never connected: %v", err)
	}
	fmt.Println("  PASS")
	passed++

	// --- Test 2: Viewer connects ---
	fmt.Println("[Test 2] Viewer connects...")

	viewer, err := slidesync.NewClient(slidesync.Config{
		ServerURL: serverURL,
		Role:      slidesync.RoleViewer,
	}, onError)
	if err != nil {
		log.Fatalf("  FAIL: NewClient(viewer): %v", err)
	}
	defer viewer.Close()

	updates := make(chan slidesync.Message, 8)
	states := make(chan slidesync.PollState, 8)
	counts := make(chan int, 1)
	viewer.OnMessage(func(m slidesync.Message) {
		switch m.StringField("type") {
		case slidesync.TypePollState:
			var st slidesync.PollState
			if m.Decode(&st) == nil {
				states <- st
			}
		case slidesync.TypeViewerCount:
			var vc slidesync.ViewerCount
			if m.Decode(&vc) == nil {
				counts <- vc.Count
			}
		}
	})

	if err := viewer.Connect(ctx, func(m slidesync.Message) { updates <- m }); err != nil {
		log.Fatalf("  FAIL: viewer.Connect(): %v", err)
	}
	if err := viewer.WaitConnected(ctx); err != nil {
		log.Fatalf("  FAIL: viewer never connected: %v", err)
	}
	fmt.Println("  PASS")
	passed++

	// Give the server a moment to register both connections.
	time.Sleep(200 * time.Millisecond)

	// --- Test 3: Slide state reaches the viewer ---
	fmt.Println("[Test 3] Presenter slide state reaches viewer...")

	presenter.Send(map[string]any{"page": 7, "clicks": 2})
	select {
	case m := <-updates:
		if page, _ := m["page"].(float64); page == 7 {
			fmt.Println("  PASS")
			passed++
		} else {
			fmt.Printf("  FAIL: unexpected update %v\n", m)
			failed++
		}
	case <-time.After(5 * time.Second):
		fmt.Println("  FAIL: no update within 5s")
		failed++
	}

	// --- Test 4: Viewer count ---
	fmt.Println("[Test 4] Viewer count...")

	viewer.RequestViewerCount()
	select {
	case n := <-counts:
		if n >= 2 {
			fmt.Printf("  PASS: %d participants\n", n)
			passed++
		} else {
			fmt.Printf("  FAIL: count = %d, want at least 2\n", n)
			failed++
		}
	case <-time.After(5 * time.Second):
		fmt.Println("  SKIP: server does not answer viewer_count")
	}

	// --- Test 5: Poll round trip ---
	fmt.Println("[Test 5] Poll open, vote, tally...")

	pollID := "it-" + uuid.NewString()[:8]
	presenter.RequestPoll(pollID, []string{"yes", "no"}, 1)

	if st, ok := nextState(states, pollID, 5*time.Second); !ok {
		fmt.Println("  FAIL: viewer did not see the poll open")
		failed++
	} else if len(st.Votes) != 0 {
		fmt.Printf("  FAIL: new poll has votes %v\n", st.Votes)
		failed++
	} else {
		viewer.Vote(pollID, "yes")
		st, ok := nextState(states, pollID, 5*time.Second)
		switch {
		case !ok:
			fmt.Println("  FAIL: no answer to vote")
			failed++
		case st.Votes["yes"] != 1 || len(st.MyChoices) != 1:
			fmt.Printf("  FAIL: votes=%v myChoices=%v\n", st.Votes, st.MyChoices)
			failed++
		default:
			fmt.Printf("  PASS: votes=%v\n", st.Votes)
			passed++
		}
	}

	// --- Test 6: Disconnect stops the viewer ---
	fmt.Println("[Test 6] Disconnect...")

	viewer.Disconnect()
	time.Sleep(100 * time.Millisecond)
	if viewer.Status() == slidesync.StatusDisconnected && !viewer.Send(map[string]any{"page": 1}) {
		fmt.Println("  PASS")
		passed++
	} else {
		fmt.Printf("  FAIL: status=%v after Disconnect\n", viewer.Status())
		failed++
	}

	// --- Summary ---
	fmt.Println()
	fmt.Println("=== Results ===")
	fmt.Printf("  Passed: %d\n", passed)
	fmt.Printf("  Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// nextState waits for the next poll_state for pollID.
func nextState(states <-chan slidesync.PollState, pollID string, timeout time.Duration) (slidesync.PollState, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case st := <-states:
			if st.PollID == pollID {
				return st, true
			}
		case <-deadline:
			return slidesync.PollState{}, false
		}
	}
}
