// Package stream serves WebSocket audio sessions. Each session frames
// inbound PCM as WAV, keeps the speech found so far and sends back a
// transcription of the accumulated speech after every chunk. The manager
// tracks live sessions for monitoring and closes them on shutdown.
package stream
