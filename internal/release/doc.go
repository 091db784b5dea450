// Package release lists GP2040-CE firmware images from the project's GitHub
// releases and keeps a local download cache of them.
//
// The orchestrator sees only Service.List and Service.Download. When the
// release feed is unreachable, List falls back to the images already in the
// cache directory so a station keeps working offline.
package release
