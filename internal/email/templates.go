package email

import "fmt"

// ConfirmationSubject is used for both single and bulk verification mail.
const ConfirmationSubject = "Successful Registration at Utshob"

// ConfirmationBody builds the verification mail for a participant. The
// registration id doubles as the entry confirmation code.
func ConfirmationBody(fullName, segmentName, confirmationCode string) string {
	return fmt.Sprintf(`Dear %s,

This is your confirmation regarding your registration in %s at Utshob.
Please show this email at the venue entrance on the event day.
Your confirmation code for the event is below:
%s

Kindly visit our page for the schedule and ensure timely attendance at the fest.
Also read the rules and regulations for every event on our website.

Best Regards,
The Utshob Team`, fullName, segmentName, confirmationCode)
}

// CAApprovalSubject heads campus ambassador approval mail.
const CAApprovalSubject = "Your Campus Ambassador Application Has Been Approved"

func CAApprovalBody(fullName, caCode string) string {
	return fmt.Sprintf(`Dear %s,

Congratulations! Your campus ambassador application has been approved.
Your referral code is below; share it with participants from your institution:
%s

Best Regards,
The Utshob Team`, fullName, caCode)
}
