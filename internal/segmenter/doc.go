// Package segmenter turns voice-activity ticks and raw recorder chunks into
// sealed utterances. It implements the idle/recording/flushing state machine
// with an arm-once silence deadline measured from the last voice tick.
package segmenter
