// Package videojob turns a prompt into a finished video file.
//
// An Orchestrator submits the initial generation to a Provider, polls the
// returned job at a fixed interval until it is done, chains zero to two
// extension jobs depending on the requested length, each seeded with the
// previous step's video, and finally downloads the last video. Progress is
// reported through a synchronous callback and every failure is returned as an
// *Error whose Kind tells the caller how to react.
package videojob
