// Package agent contains the expert actor implementations for the roundtable
// engine. The package covers three concerns:
//
//  1. The base reasoning cycle (Expert): drain mailbox, build a bounded
//     reasoning context, invoke the model, execute requested capabilities,
//     classify the result into a recipient + kind and emit outgoing messages
//  2. Structured interpretation of model output: the directive parser turning
//     free-form text into a CallTool | PlainText sum type, and the message
//     classifier producing an explicit tagged Classification
//  3. The batch analyst variant (Analyst) running an explicit
//     plan -> execute -> solve cycle with bounded concurrent tool execution
//
// Experts own no scheduling logic; the meeting package decides when a cycle
// runs. History and status are not reset between meetings, so reuse an
// Expert for at most one meeting or call Reset in between.
package agent
