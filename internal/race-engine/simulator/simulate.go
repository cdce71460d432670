package simulator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Contestants acompanha ledger.Contestants; o simulador não depende do ledger
const Contestants = 4

var (
	ErrInvalidParams = errors.New("invalid simulation params")
	ErrUnknownRound  = errors.New("unknown round")
)

type Params struct {
	Duration        time.Duration
	Step            time.Duration
	TrackLength     float64
	MinRate         float64
	RateSpan        float64
	WinnerFloor     float64
	JitterAmplitude float64
}

func DefaultParams() Params {
	return Params{
		Duration:        20 * time.Second,
		Step:            100 * time.Millisecond,
		TrackLength:     100,
		MinRate:         0.4,
		RateSpan:        0.5,
		WinnerFloor:     0.85,
		JitterAmplitude: 1,
	}
}

func (p Params) Validate() error {
	if p.Duration <= 0 || p.Step <= 0 || p.Step > p.Duration {
		return fmt.Errorf("%w: duration=%s step=%s", ErrInvalidParams, p.Duration, p.Step)
	}
	if p.TrackLength <= 0 || math.IsNaN(p.TrackLength) || math.IsInf(p.TrackLength, 0) {
		return fmt.Errorf("%w: track length %v", ErrInvalidParams, p.TrackLength)
	}
	if p.RateSpan < 0 || p.MinRate < 0 || p.JitterAmplitude < 0 {
		return fmt.Errorf("%w: negative rate or jitter", ErrInvalidParams)
	}
	return nil
}

// Frames devolve quantos quadros a corrida tem (Duration/Step arredondado p/ cima)
func (p Params) Frames() int {
	n := int(p.Duration / p.Step)
	if p.Duration%p.Step != 0 {
		n++
	}
	return n
}

type Result struct {
	Seed   uint64                 `json:"seed"`
	Rates  [Contestants]float64   `json:"rates"`
	Frames [][Contestants]float64 `json:"frames"`
	Final  [Contestants]float64   `json:"final"`
	Winner int                    `json:"winner"`
}

// Simulate é puro: mesma seed e mesmos params produzem o mesmo resultado,
// bit a bit, em qualquer processo.
func Simulate(seed uint64, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{Seed: seed}
	base := newLCG(seed)
	best := 0
	for i := 0; i < Contestants; i++ {
		res.Rates[i] = float64(p.MinRate + float64(base.next()*p.RateSpan))
		if res.Rates[i] > res.Rates[best] {
			best = i
		}
	}
	if res.Rates[best] < p.WinnerFloor {
		res.Rates[best] = p.WinnerFloor
	}

	frames := p.Frames()
	res.Frames = make([][Contestants]float64, frames)
	reduced := seed % lcgMod
	for k := 1; k <= frames; k++ {
		elapsed := time.Duration(k) * p.Step
		if elapsed > p.Duration {
			elapsed = p.Duration
		}
		progress := float64(elapsed) / float64(p.Duration)
		for i := 0; i < Contestants; i++ {
			jitter := float64(float64(newLCG(reduced+uint64(k+i)).next()-0.5) * 2 * p.JitterAmplitude)
			advance := float64(float64(progress*p.TrackLength) * res.Rates[i])
			res.Frames[k-1][i] = clamp(float64(advance+jitter), 0, p.TrackLength)
		}
	}

	res.Final = res.Frames[frames-1]
	res.Winner = leader(res.Final)
	return res, nil
}

// leader: maior posição; empate fica com o menor índice
func leader(pos [Contestants]float64) int {
	w := 0
	for i := 1; i < Contestants; i++ {
		if pos[i] > pos[w] {
			w = i
		}
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
