// Package sealdrop is a client SDK for end-to-end encrypted, sealed-sender
// messaging through an untrusted relay.
//
// The relay stores only public keys, a sealed random master per account and
// opaque envelopes. Every secret a client needs is re-derived from the email
// and password at login: Argon2id turns them into a deterministic identity
// that signs session tokens and opens the sealed master, and the master
// yields the long-term messaging keys. Envelopes carry no sender identity;
// the relay files them by an opaque recipient id and a conversation token
// both parties derive from their static keys.
//
// Basic usage:
//
//	client, err := sealdrop.New(sealdrop.WithBaseURL("https://relay.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Register(ctx, "alice@example.com", password); err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := client.Login(ctx, "alice@example.com", password)
//	if err != nil {
//	    log.Fatal(err) // errors.Is(err, sealdrop.ErrSealOpenFailure) for a wrong password
//	}
//
//	if _, err := session.Send(ctx, "bob@example.com", "hello"); err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, err := session.WaitForMessage(ctx, sealdrop.WithFrom("bob@example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(msg.Text, msg.Verified)
//
// Messages that decrypt but fail verification are still returned with
// Verified set to false; Message.Err describes the failure. Per-message
// ephemeral keys are re-derivable from the static keys, so the scheme offers
// no forward secrecy against compromise of a user's password and sealed
// master.
package sealdrop
