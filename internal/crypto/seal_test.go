package crypto

import (
	"bytes"
	"testing"
)

func TestSealUnseal_RoundTrip(t *testing.T) {
	t.Parallel()
	id, err := DeriveDeterministic("alice@example.com", "correct horse battery", TestParams)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := DeriveRegistrationRandom(TestParams)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := Seal(reg.Master, &id.X.Public)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	master, err := Unseal(sealed, id.X)
	if err != nil {
		t.Fatalf("Unseal() error = %v", err)
	}
	if !bytes.Equal(master, reg.Master) {
		t.Fatal("unsealed master differs")
	}

	runtimeID, err := DeriveRuntimeFromMaster(master)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(runtimeID.Ed.Public, reg.Runtime.Ed.Public) || !bytes.Equal(runtimeID.Ed.Private, reg.Runtime.Ed.Private) {
		t.Error("runtime Ed25519 keys are not reproduced from the master")
	}
	if runtimeID.X.Public != reg.Runtime.X.Public || runtimeID.X.Private != reg.Runtime.X.Private {
		t.Error("runtime X25519 keys are not reproduced from the master")
	}
}

func TestUnseal_Failures(t *testing.T) {
	t.Parallel()
	alice, err := DeriveDeterministic("alice@example.com", "correct horse battery", TestParams)
	if err != nil {
		t.Fatal(err)
	}
	wrong, err := DeriveDeterministic("alice@example.com", "wrong horse battery", TestParams)
	if err != nil {
		t.Fatal(err)
	}

	master := bytes.Repeat([]byte{7}, KeySize)
	sealed, err := Seal(master, &alice.X.Public)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0x01

	tests := []struct {
		name string
		ct   []byte
		kp   *XKeypair
	}{
		{"wrong password", sealed, wrong.X},
		{"tampered", tampered, alice.X},
		{"truncated", sealed[:10], alice.X},
		{"empty", nil, alice.X},
		{"nil keypair", sealed, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unseal(tt.ct, tt.kp)
			if err != ErrSealOpen {
				t.Errorf("error = %v, want exactly ErrSealOpen", err)
			}
			if got != nil {
				t.Error("plaintext returned on failure")
			}
		})
	}
}
