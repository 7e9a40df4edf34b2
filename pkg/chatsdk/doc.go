/*
Package chatsdk provides a client SDK for the BarChat service.

# SDKClient vs Session

  - SDKClient: unauthenticated operations, and the logins that create sessions
  - Session: authenticated operations with automatic token refresh

Create an SDKClient, then log in:

	client := chatsdk.NewSDKClient("https://chat.example.com")

	_, err := client.Register(ctx, "alice", password, "Alice")
	session, err := client.Login(ctx, "alice", password)

	// Or without an account. Guests can chat but not create rooms.
	session, err := client.LoginAsGuest(ctx, "visitor")

Sessions refresh the access token shortly before it expires. The refresh
token does not rotate, so a saved session resumes with:

	session, err := client.AuthenticateWithRefreshToken(ctx, userID, refreshToken)

# Rooms

	room, err := session.CreateRoom(ctx, "general")
	_, err = other.JoinRoom(ctx, room.ID)

	page, err := session.History(ctx, room.ID, "", 50)
	older, err := session.History(ctx, room.ID, page[len(page)-1].ID, 50)

# Realtime

A Stream keeps one socket open and reconnects on its own:

	stream := session.Stream(func(f chatsdk.Frame) {
		switch f.Code {
		case chatsdk.CodeRoomMessage:
			msg, _ := f.Message()
			// ...
		case chatsdk.CodeAck, chatsdk.CodeNack:
			ack, _ := f.Ack()
			// match ack.TempID with the optimistic copy
		}
	})
	stream.OnConnect = func() {
		// Anything sent while disconnected was missed.
		state, _ := session.GetState(ctx)
		// ...
	}

	go func() {
		err := stream.Run(ctx)
		if errors.Is(err, chatsdk.ErrReauthRequired) {
			// log in again
		}
	}()

	err := stream.Send(chatsdk.OutboundMessage{RoomID: room.ID, Body: "hi", TempID: "t-1"})

Close codes drive reconnection:

  - 4002 (token expired): the stream refreshes and reconnects at once
  - 4001 (invalid token, logged out): Run returns ErrReauthRequired
  - anything else: exponential backoff, reset after each healthy connection

# Errors

Failed requests return *APIError. Compare with the predefined errors:

	if errors.Is(err, chatsdk.ErrUsernameTaken) {
		// ...
	}
*/
package chatsdk
