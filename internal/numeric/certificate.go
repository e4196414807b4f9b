package numeric

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Certificate step and type identifiers.
const (
	StepSmallPrime    = "small_prime"
	StepPocklington   = "pocklington"
	StepProbablePrime = "probable_prime"

	CertTypeTrialDivision = "trial_division"
	CertTypePocklington   = "pocklington"
	CertTypeProbablePrime = "probable_prime"
)

// smallPrimeLimit is the largest n proven prime by exhaustive trial division.
const smallPrimeLimit = 1000

// factorPrimes are the primes used to pull a smooth part out of n-1 for the
// Pocklington condition.
var factorPrimes = []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53}

// CertificateStep is one link in a primality proof.
type CertificateStep struct {
	Type       string   `json:"type"`
	N          string   `json:"n"`
	Witness    string   `json:"witness,omitempty"`
	F          string   `json:"f,omitempty"`
	R          string   `json:"r,omitempty"`
	FactorsOfF []string `json:"factors_of_f,omitempty"`
	Rounds     int      `json:"rounds,omitempty"`
}

// Certificate is a self-contained primality proof document. Verified is true
// only when every step is independently checkable; a probable_prime step
// records the evidence but proves nothing.
type Certificate struct {
	N         string            `json:"n"`
	Type      string            `json:"certificate_type"`
	Steps     []CertificateStep `json:"steps"`
	Verified  bool              `json:"verified"`
	CreatedAt time.Time         `json:"created_at"`
}

// GenerateCertificate builds a primality certificate for n, or returns nil
// if n is not (probably) prime. Small n get a trial-division proof. Larger n
// get a Pocklington proof when the smooth part F of n-1 satisfies F^2 > n;
// otherwise the certificate degrades to a recorded probable-prime test.
func GenerateCertificate(n *big.Int) *Certificate {
	if !IsProbablePrime(n, 50) {
		return nil
	}

	cert := &Certificate{
		N:         n.String(),
		CreatedAt: time.Now().UTC(),
	}

	if n.Cmp(big.NewInt(smallPrimeLimit)) <= 0 {
		cert.Type = CertTypeTrialDivision
		cert.Verified = true
		cert.Steps = []CertificateStep{{Type: StepSmallPrime, N: n.String()}}
		return cert
	}

	f, r, factors := partialFactorization(new(big.Int).Sub(n, one))
	if new(big.Int).Mul(f, f).Cmp(n) > 0 {
		if witness := findPocklingtonWitness(n, factors); witness != nil {
			cert.Type = CertTypePocklington
			cert.Verified = true
			cert.Steps = []CertificateStep{{
				Type:       StepPocklington,
				N:          n.String(),
				Witness:    witness.String(),
				F:          f.String(),
				R:          r.String(),
				FactorsOfF: factorStrings(factors),
			}}
			return cert
		}
	}

	cert.Type = CertTypeProbablePrime
	cert.Steps = []CertificateStep{{Type: StepProbablePrime, N: n.String(), Rounds: 50}}
	return cert
}

// Verify rechecks every step of the certificate from scratch. It returns
// false for probable_prime steps, which are evidence rather than proof.
func (c *Certificate) Verify() bool {
	if c == nil || len(c.Steps) == 0 {
		return false
	}
	for _, step := range c.Steps {
		if !verifyStep(step) {
			return false
		}
	}
	return true
}

// JSON serializes the certificate for storage alongside a job result.
func (c *Certificate) JSON() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certificate: %w", err)
	}
	return data, nil
}

// ParseCertificate decodes a stored certificate document.
func ParseCertificate(data []byte) (*Certificate, error) {
	var cert Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &cert, nil
}

func verifyStep(step CertificateStep) bool {
	n, ok := new(big.Int).SetString(step.N, 10)
	if !ok || n.Cmp(two) < 0 {
		return false
	}

	switch step.Type {
	case StepSmallPrime:
		return n.Cmp(big.NewInt(smallPrimeLimit)) <= 0 && trialDivisionProves(n)
	case StepPocklington:
		return verifyPocklington(n, step)
	default:
		return false
	}
}

// verifyPocklington rechecks the Pocklington-Lehmer conditions: n-1 = F*R
// with F fully factored into the listed primes, F^2 > n, and a witness a
// with a^(n-1) = 1 mod n and gcd(a^((n-1)/q) - 1, n) = 1 for every prime q
// dividing F.
func verifyPocklington(n *big.Int, step CertificateStep) bool {
	f, ok := new(big.Int).SetString(step.F, 10)
	if !ok || f.Sign() <= 0 {
		return false
	}
	r, ok := new(big.Int).SetString(step.R, 10)
	if !ok || r.Sign() <= 0 {
		return false
	}
	witness, ok := new(big.Int).SetString(step.Witness, 10)
	if !ok || witness.Cmp(two) < 0 {
		return false
	}

	nm1 := new(big.Int).Sub(n, one)
	if new(big.Int).Mul(f, r).Cmp(nm1) != 0 {
		return false
	}
	if new(big.Int).Mul(f, f).Cmp(n) <= 0 {
		return false
	}

	// F must be exactly the product of the listed primes.
	residual := new(big.Int).Set(f)
	qs := make([]*big.Int, 0, len(step.FactorsOfF))
	for _, raw := range step.FactorsOfF {
		q, ok := new(big.Int).SetString(raw, 10)
		if !ok || !trialDivisionProves(q) {
			return false
		}
		for new(big.Int).Mod(residual, q).Sign() == 0 {
			residual.Quo(residual, q)
		}
		qs = append(qs, q)
	}
	if residual.Cmp(one) != 0 {
		return false
	}

	return pocklingtonHolds(n, witness, qs)
}

// pocklingtonHolds checks the witness conditions for a against the prime
// divisors qs of F.
func pocklingtonHolds(n, a *big.Int, qs []*big.Int) bool {
	nm1 := new(big.Int).Sub(n, one)
	if new(big.Int).Exp(a, nm1, n).Cmp(one) != 0 {
		return false
	}
	for _, q := range qs {
		e := new(big.Int).Quo(nm1, q)
		x := new(big.Int).Exp(a, e, n)
		x.Sub(x, one).Mod(x, n)
		if new(big.Int).GCD(nil, nil, x, n).Cmp(one) != 0 {
			return false
		}
	}
	return true
}

// partialFactorization splits m into F*R where F collects every power of
// the small factor primes and R is the unfactored cofactor.
func partialFactorization(m *big.Int) (f, r *big.Int, factors []*big.Int) {
	f = big.NewInt(1)
	r = new(big.Int).Set(m)
	for _, p := range factorPrimes {
		pb := big.NewInt(p)
		divided := false
		for new(big.Int).Mod(r, pb).Sign() == 0 {
			r.Quo(r, pb)
			f.Mul(f, pb)
			divided = true
		}
		if divided {
			factors = append(factors, pb)
		}
	}
	return f, r, factors
}

// findPocklingtonWitness searches a in [2, 100) for a base satisfying the
// Pocklington conditions for n with prime divisors qs of F.
func findPocklingtonWitness(n *big.Int, qs []*big.Int) *big.Int {
	for a := int64(2); a < 100; a++ {
		ab := big.NewInt(a)
		if pocklingtonHolds(n, ab, qs) {
			return ab
		}
	}
	return nil
}

// trialDivisionProves proves primality of n by exhaustive trial division.
// Only intended for small n.
func trialDivisionProves(n *big.Int) bool {
	if n.Cmp(two) < 0 {
		return false
	}
	limit := Isqrt(n)
	d := big.NewInt(2)
	for d.Cmp(limit) <= 0 {
		if new(big.Int).Mod(n, d).Sign() == 0 {
			return false
		}
		d.Add(d, one)
	}
	return true
}

func factorStrings(factors []*big.Int) []string {
	out := make([]string, len(factors))
	for i, f := range factors {
		out[i] = f.String()
	}
	return out
}
