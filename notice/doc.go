// Package notice renders the notification copy sent through the delivery
// engine.
//
// A Catalog maps every message kind to a subject/body template with named
// placeholders in the form "%{key}". The built-in catalog covers all kinds
// out of the box; operators can override individual templates from a YAML
// file without redefining the rest:
//
//	event_cancelled:
//	  subject: "[cancelled] %{title}"
//	  body: "%{title} is off. Reason: %{reason}."
//
// Builder methods produce ready-to-send delivery.Message values:
//
//	catalog, err := notice.Load("notices.yaml")
//	if err != nil {
//		catalog = notice.Default()
//	}
//	msg := catalog.Reminder(evt, 24*time.Hour)
//	report, err := fanout.Personal(ctx, evt, subID, msg)
//
// Unknown placeholders are left verbatim in the output so a typo in an
// override file is visible in the delivered text rather than silently
// erased.
package notice
