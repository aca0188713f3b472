// Package slidesync provides a Go client for synchronizing slide-presentation
// state between a presenter and its viewers over a companion WebSocket server.
//
// A Client owns exactly one logical channel backed by at most one connection
// at a time. It reconnects after unexpected closures and routes inbound
// messages along two paths:
//
//   - Legacy updates: messages without a discriminator field ("type" by
//     default) are handed to the UpdateFunc passed to Connect.
//   - Typed messages: messages carrying the discriminator are fanned out to
//     every handler registered with OnMessage, in registration order.
//
// Basic usage:
//
//	client, err := slidesync.NewClient(slidesync.Config{
//	    ServerURL: "https://slides.example.com",
//	}, slidesync.LogErrors(slog.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	unregister := client.OnMessage(func(msg slidesync.Message) {
//	    var st slidesync.PollState
//	    if err := msg.Decode(&st); err == nil {
//	        fmt.Println(st.Votes)
//	    }
//	}, slidesync.ForTypes(slidesync.TypePollState))
//	defer unregister()
//
//	if err := client.Connect(ctx, func(update slidesync.Message) {
//	    fmt.Println("slide state:", update)
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Send(map[string]any{"page": 3})
package slidesync
