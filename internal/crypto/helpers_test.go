package crypto

import (
	"testing"
)

type testUser struct {
	email   string
	det     *Identity
	runtime *RuntimeIdentity
}

func newTestUser(t *testing.T, email string) *testUser {
	t.Helper()
	det, err := DeriveDeterministic(email, "correct horse battery", TestParams)
	if err != nil {
		t.Fatalf("DeriveDeterministic(%s) error = %v", email, err)
	}
	reg, err := DeriveRegistrationRandom(TestParams)
	if err != nil {
		t.Fatalf("DeriveRegistrationRandom() error = %v", err)
	}
	return &testUser{email: email, det: det, runtime: reg.Runtime}
}

func (u *testUser) recipient(id string) Recipient {
	return Recipient{ID: id, XPub: u.runtime.X.Public}
}

func (u *testUser) conversationWith(t *testing.T, peer *testUser) *Conversation {
	t.Helper()
	conv, err := DeriveConversation(&u.runtime.X.Private, &peer.runtime.X.Public)
	if err != nil {
		t.Fatalf("DeriveConversation() error = %v", err)
	}
	return conv
}
