package deadline

import (
	"time"

	"github.com/coder/quartz"
)

// Phase é a leitura do prazo de apostas em relação ao relógio
type Phase int

const (
	Open Phase = iota
	Expired
)

func (p Phase) String() string {
	if p == Expired {
		return "expired"
	}
	return "open"
}

// Authority responde "o prazo já passou?" e "quanto falta?".
// Não guarda estado: o prazo vem sempre do round.
type Authority struct {
	clock quartz.Clock
}

func New(clock quartz.Clock) *Authority {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Authority{clock: clock}
}

func (a *Authority) Now() time.Time { return a.clock.Now() }

// DeadlineFrom calcula o prazo de um round aberto agora
func (a *Authority) DeadlineFrom(window time.Duration) time.Time {
	// segundos inteiros: a semente determinística usa deadline.Unix()
	return a.clock.Now().Add(window).Truncate(time.Second)
}

// PhaseOf: apostas valem enquanto now < deadline
func (a *Authority) PhaseOf(deadline time.Time) Phase {
	if a.clock.Now().Before(deadline) {
		return Open
	}
	return Expired
}

// Remaining nunca é negativo
func (a *Authority) Remaining(deadline time.Time) time.Duration {
	d := deadline.Sub(a.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (a *Authority) Clock() quartz.Clock { return a.clock }
