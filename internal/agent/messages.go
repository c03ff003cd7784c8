package agent

// 面向用户的固定回复
const (
	msgCapabilities = "I can help you book a new appointment, reschedule an existing one, or cancel one. " +
		"I can't answer general questions such as prices or opening hours, so please contact the practice directly for those. " +
		"What would you like to do?"

	msgAskIdentity = "I'd be happy to help with that. Could you tell me your full name and email address?"
	msgAskName     = "Thanks! Could you also tell me your full name?"
	msgAskEmail    = "Thanks, %s. What email address should I use for the appointment?"

	msgAskLookupEmail = "What email address did you use when booking the appointment?"
	msgAskOtherEmail  = "No problem. Which other email address might the appointment be under?"
	msgLookupNotFound = "I couldn't find any upcoming appointments for %s."
	msgLookupHint     = "You can give me another email address, or say \"book a new appointment\" to make one."
	msgLookupFailed   = "I couldn't look up your appointments right now. Please try again in a moment."

	msgEventList      = "I found these upcoming appointments for %s:"
	msgEventPickOne   = "Which one would you like to %s? Reply with its number."
	msgEventSingle    = "I found your appointment on %s. Is this the one you want to %s? (Yes/No)"
	msgConfirmCancel  = "Are you sure you want to cancel your appointment on %s? (Yes/No)"
	msgCancelled      = "Your appointment on %s has been cancelled."
	msgCancelKept     = "No problem, your appointment on %s remains scheduled."
	msgCancelFailed   = "I couldn't cancel the appointment right now. Please try again in a moment."
	msgConfirmUnclear = "Sorry, I need a clear yes or no. Do you want to cancel your appointment on %s?"

	msgAskTime           = "What day and time works best for you? For example \"Tuesday morning\" or \"Friday at 2pm\"."
	msgAskRescheduleTime = "When would you like to move it to? For example \"Tuesday morning\" or \"Friday at 2pm\"."
	msgAskTimeAgain      = "Sorry, I didn't catch a day or time. Could you say something like \"Wednesday afternoon\" or \"any time\"?"
	msgAskTimeOther      = "No problem. What other day or time would work for you?"

	msgSlotsMatching  = "Here are the available times that match your request:"
	msgSlotsBroadened = "I couldn't find anything matching that exactly, but these times are available in the next %d days:"
	msgSlotsPick      = "Reply with the number of the time you'd like."
	msgNoAvailability = "Sorry, there is no availability in the next %d days. Please suggest another time or try again later."
	msgSlotsFailed    = "I couldn't check availability right now. Please try again in a moment."

	msgBooked          = "You're all set, %s! Your appointment is booked for %s. A confirmation will be sent to %s."
	msgRescheduled     = "Done! Your appointment has been moved to %s."
	msgOldCancelFailed = "However, I couldn't cancel your previous appointment on %s. Please cancel it separately."
	msgBookingFailed   = "Sorry, I couldn't book %s. Please choose another time:"
)
