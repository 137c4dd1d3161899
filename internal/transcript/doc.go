// Copyright (c) TripFlow Authors.
// Licensed under the MIT License.

// Package transcript persists finished conversation turns to the
// turn_transcripts table through GORM. Store implements
// conversation.Recorder and backs the conversation history endpoint.
// Writer puts a bounded worker pool in front of a Store so turns are
// recorded off the conversation's goroutine.
package transcript
