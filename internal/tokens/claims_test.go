package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// makeToken builds an unsigned credential for tests. Decode never checks
// signatures, so a fake one keeps the JWT structure valid.
func makeToken(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SigningString()
	return tokenString + ".fake_signature"
}

func TestDecode_ValidToken(t *testing.T) {
	tokenString := makeToken(jwt.MapClaims{
		"sub":       "user-1",
		"userId":    "user-1",
		"role":      "instructor",
		"sessionId": "sess-42",
		"type":      TypeAccess,
		"exp":       float64(time.Now().Add(1 * time.Hour).Unix()),
	})

	claims, err := Decode(tokenString)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("expected UserID=user-1, got %q", claims.UserID)
	}
	if claims.Role != "instructor" {
		t.Errorf("expected Role=instructor, got %q", claims.Role)
	}
	if claims.SessionID != "sess-42" {
		t.Errorf("expected SessionID=sess-42, got %q", claims.SessionID)
	}
	if claims.Type != TypeAccess {
		t.Errorf("expected Type=%s, got %q", TypeAccess, claims.Type)
	}
}

func TestDecode_EmptyToken(t *testing.T) {
	if _, err := Decode(""); err != ErrNoToken {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
}

func TestDecode_MalformedToken(t *testing.T) {
	for _, tokenString := range []string{"garbage", "a.b", "not.a.jwt"} {
		if _, err := Decode(tokenString); err != ErrInvalidToken {
			t.Errorf("Decode(%q): expected ErrInvalidToken, got %v", tokenString, err)
		}
	}
}

func TestInfo_Recomputed(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute)
	tokenString := makeToken(jwt.MapClaims{"exp": float64(exp.Unix())})

	early := info(tokenString, exp.Add(-10*time.Minute))
	late := info(tokenString, exp.Add(-1*time.Minute))
	if early == nil || late == nil {
		t.Fatal("expected info for a well-formed token")
	}
	if late.TTL >= early.TTL {
		t.Errorf("expected TTL to shrink as now advances: early=%v late=%v", early.TTL, late.TTL)
	}

	after := info(tokenString, exp.Add(1*time.Second))
	if after == nil || !after.Expired {
		t.Error("expected token to be expired after its exp claim")
	}
}

func TestInfo_NoExpiry(t *testing.T) {
	tokenString := makeToken(jwt.MapClaims{"sub": "user-1"})
	if got := info(tokenString, time.Now()); got != nil {
		t.Errorf("expected nil info for a token without exp, got %+v", got)
	}
}
