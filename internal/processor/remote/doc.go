// Package remote implements a processor that uploads queue entry payloads to
// a file-content endpoint (Dropbox's /2/files/upload by default).
//
// Each upload is a POST carrying the payload as the body, a bearer token from
// the run, and a JSON argument header naming the target path:
//
//	Dropbox-API-Arg: {"path":"/shopping-lists-L1.json","mode":"overwrite","autorename":false}
package remote
