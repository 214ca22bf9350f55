// Package notify delivers alert text to operator channels.
//
// A Dispatcher holds an ordered list of channels and attempts every one of
// them for each alert. A failing or panicking channel is logged and reported
// in the DispatchResult; it never prevents the remaining channels from being
// tried.
//
// # Channels
//
//   - EMAIL: plain-text mail through an injected MailTransport.
//   - WEBHOOK: DingTalk-style robot webhook, optionally signed and throttled.
//   - TELEGRAM: a chat (and optional topic) through telebot.
//
// Build constructs the enabled channels in that fixed order.
package notify
