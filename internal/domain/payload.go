package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// OriginVisaoItinerante is the only registration origin the partner accepts.
const OriginVisaoItinerante = "visao_itinerante"

// Payload field limits.
const (
	MinNameLength  = 2
	MaxNameLength  = 100
	MaxEmailLength = 255
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegistrationPayload is the flat user-registration object forwarded to the
// partner API. JSON field names follow the partner contract.
type RegistrationPayload struct {
	Name      string    `json:"nome"`
	Email     string    `json:"email"`
	Phone     string    `json:"telefone"`
	CPF       string    `json:"cpf"`
	Origin    string    `json:"origem_cadastro"`
	Consent   bool      `json:"consentimento_data_sharing"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize trims text fields and strips formatting from phone and CPF so the
// partner receives digits only.
func (p *RegistrationPayload) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.Phone = digitsOnly(p.Phone)
	p.CPF = digitsOnly(p.CPF)
	p.Origin = strings.TrimSpace(p.Origin)
}

// Validate checks the payload shape and content. All problems are collected
// and reported together as a single ErrValidation.
func (p *RegistrationPayload) Validate() error {
	var problems []string

	nameLen := len([]rune(p.Name))
	switch {
	case nameLen < MinNameLength:
		problems = append(problems, fmt.Sprintf("nome deve ter pelo menos %d caracteres", MinNameLength))
	case nameLen > MaxNameLength:
		problems = append(problems, fmt.Sprintf("nome deve ter no máximo %d caracteres", MaxNameLength))
	case !isLettersAndSpaces(p.Name):
		problems = append(problems, "nome deve conter apenas letras e espaços")
	}

	if len(p.Email) > MaxEmailLength {
		problems = append(problems, fmt.Sprintf("email deve ter no máximo %d caracteres", MaxEmailLength))
	} else if !emailPattern.MatchString(p.Email) {
		problems = append(problems, "email deve ter um formato válido")
	}

	if n := len(p.Phone); n != 10 && n != 11 {
		problems = append(problems, "telefone deve ter 10 ou 11 dígitos")
	}

	if !ValidCPF(p.CPF) {
		problems = append(problems, "CPF deve ser válido")
	}

	if p.Origin != OriginVisaoItinerante {
		problems = append(problems, fmt.Sprintf("origem_cadastro deve ser %q", OriginVisaoItinerante))
	}

	if !p.Consent {
		problems = append(problems, "consentimento é obrigatório para envio dos dados")
	}

	if p.CreatedAt.IsZero() {
		problems = append(problems, "created_at é obrigatório")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, ", "))
	}
	return nil
}

// ValidCPF reports whether a digits-only CPF passes the mod-11 checksum.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	for _, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
	}

	// All-equal digit sequences pass the checksum but are not valid documents.
	allEqual := true
	for i := 1; i < 11; i++ {
		if cpf[i] != cpf[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return false
	}

	if cpfCheckDigit(cpf, 9) != int(cpf[9]-'0') {
		return false
	}
	return cpfCheckDigit(cpf, 10) == int(cpf[10]-'0')
}

// cpfCheckDigit computes the verification digit over the first n digits.
func cpfCheckDigit(cpf string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(cpf[i]-'0') * (n + 1 - i)
	}
	remainder := (sum * 10) % 11
	if remainder == 10 || remainder == 11 {
		remainder = 0
	}
	return remainder
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isLettersAndSpaces(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
