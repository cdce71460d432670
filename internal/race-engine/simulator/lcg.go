package simulator

const (
	lcgMul = 9301
	lcgInc = 49297
	lcgMod = 233280
)

// lcg é o gerador congruencial usado por todos os clientes que animam a
// corrida; trocar as constantes quebra a sincronia entre eles
type lcg struct {
	s uint64
}

func newLCG(seed uint64) *lcg {
	return &lcg{s: seed % lcgMod}
}

// next devolve um valor em [0,1)
func (g *lcg) next() float64 {
	g.s = (g.s*lcgMul + lcgInc) % lcgMod
	return float64(g.s) / float64(lcgMod)
}
