// Package speech: lines.go centralises every spoken string. Keep lines
// short and direct; the TTS engine handles inflection.
package speech

import "fmt"

// ── Voice assistant ──────────────────────────────────────────────

func LineActivated() string {
	return "Voice recognition activated. Say hello to test."
}

func LineDeactivated() string {
	return "Voice recognition turned off"
}

func LineUnknownCommand(heard string) string {
	return fmt.Sprintf("I heard %s, but I don't understand that command. Try saying hello, go home, show cart, or search for something.", heard)
}

// ── User-visible notifications (never spoken over the mic) ───────

func LineMicDenied() string {
	return "Microphone access was denied. Allow microphone access and turn voice control on again."
}

func LineRecognitionUnavailable() string {
	return "Voice commands are not available on this device."
}

func LineActivationFailed() string {
	return "Voice recognition could not start. Try again in a moment."
}

func LineRecognitionLost() string {
	return "Voice recognition stopped and could not restart. Turn it on again to keep going."
}

func LineRecognitionTrouble() string {
	return "Voice recognition is having trouble. Still listening."
}

// ── Status bar ───────────────────────────────────────────────────

func StatusNetwork() string {
	return "network issue, reconnecting"
}

func StatusNoSpeech() string {
	return "waiting for speech"
}

// ── Narration ────────────────────────────────────────────────────

func LineReadAloudOn() string {
	return "Read-aloud system on"
}

func LineReadAloudOff() string {
	return "Read-aloud system off"
}

func LineNarrationWelcome() string {
	return "Welcome to VoiceCart. Voice narration is active."
}

func LineClicked(element string) string {
	return "Clicked " + element
}

func LineNavigating(page string) string {
	return "Navigating to " + page
}

func LineAddedToCart(product string) string {
	return fmt.Sprintf("Added %s to cart", product)
}

func LineRemovedFromCart(product string) string {
	return fmt.Sprintf("Removed %s from cart", product)
}

func LineSearching(term string) string {
	return "Searching for " + term
}

func LinePageLoaded(page string) string {
	return page + " page loaded"
}

func LineFormSubmitted(form string) string {
	return fmt.Sprintf("Submitting %s form", form)
}

func LineQuantityChanged(product string, qty int) string {
	return fmt.Sprintf("Changed %s quantity to %d", product, qty)
}

func LineCheckout() string {
	return "Proceeding to checkout"
}

func LinePayment() string {
	return "Processing payment"
}

func LineOrderComplete() string {
	return "Order completed successfully"
}

func LineError(msg string) string {
	return "Error: " + msg
}

func LineSuccess(msg string) string {
	return "Success: " + msg
}
