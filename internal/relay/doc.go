// Package relay is a companion sync server for local development and
// tests. It speaks the same protocol as the production server: presenters'
// slide state is forwarded to every other participant, and poll and
// viewer-count commands are answered by the relay itself.
//
//	hub := relay.NewHub(relay.NewMemoryStore(),
//		relay.WithSessions(relay.NewStaticSessions(os.Getenv("PRESENTER_TOKEN"))),
//	)
//	http.ListenAndServe(":3030", relay.NewServer(hub))
package relay
