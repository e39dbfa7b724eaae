package delivery

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
)

// Synthetic registration generators used to drive property tests against the
// validation and retry logic without depending on the real partner.

// GenerateCPF returns a checksum-valid synthetic CPF, digits only.
func GenerateCPF(rng *rand.Rand) string {
	digits := make([]int, 0, 11)
	for i := 0; i < 9; i++ {
		digits = append(digits, rng.Intn(10))
	}

	digits = append(digits, cpfVerifier(digits))
	digits = append(digits, cpfVerifier(digits))

	out := make([]byte, 11)
	for i, d := range digits {
		out[i] = byte('0' + d)
	}
	return string(out)
}

func cpfVerifier(digits []int) int {
	n := len(digits)
	sum := 0
	for i, d := range digits {
		sum += d * (n + 1 - i)
	}
	remainder := (sum * 10) % 11
	if remainder == 10 || remainder == 11 {
		remainder = 0
	}
	return remainder
}

// GenerateRegistration returns a synthetic registration that passes payload
// validation.
func GenerateRegistration(rng *rand.Rand) domain.RegistrationPayload {
	suffix := rng.Intn(1_000_000)
	return domain.RegistrationPayload{
		Name:      fmt.Sprintf("Usuário Teste %s", testNameSuffix(rng)),
		Email:     fmt.Sprintf("teste%06d@exemplo.com", suffix),
		Phone:     fmt.Sprintf("11%09d", rng.Intn(900_000_000)+100_000_000),
		CPF:       GenerateCPF(rng),
		Origin:    domain.OriginVisaoItinerante,
		Consent:   true,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerateInvalidRegistration returns a synthetic registration that fails
// validation in exactly one field, cycling through the known failure classes.
func GenerateInvalidRegistration(rng *rand.Rand) domain.RegistrationPayload {
	payload := GenerateRegistration(rng)

	switch rng.Intn(5) {
	case 0:
		payload.Name = "X"
	case 1:
		payload.Email = "not-an-email"
	case 2:
		payload.Phone = "12"
	case 3:
		payload.CPF = "00000000000"
	default:
		payload.Consent = false
	}

	return payload
}

func testNameSuffix(rng *rand.Rand) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	out := make([]rune, 6)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}
