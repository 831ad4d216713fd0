package server

import "strings"

const clientSource = `(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var overlay = null;
  function showErrors(errors) {
    if (!overlay) {
      overlay = document.createElement("pre");
      overlay.id = "__bundlr_errors__";
      overlay.style.cssText = "position:fixed;inset:0;margin:0;padding:24px;overflow:auto;z-index:2147483647;background:rgba(0,0,0,.85);color:#ff6b6b;font:13px/1.5 monospace;white-space:pre-wrap";
      document.body.appendChild(overlay);
    }
    overlay.textContent = errors.map(function (e) {
      return (e.module ? e.module + ": " : "") + e.message;
    }).join("\n\n");
  }
  function connect() {
    var ws = new WebSocket(proto + location.host + "/*PATH*/");
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "update") {
        location.reload();
      } else if (msg.type === "errors") {
        showErrors(msg.errors || []);
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
`

// ClientScript is the browser side of live reload: it reloads the page on
// every update and overlays build errors. It is inlined into the root
// document in development.
func ClientScript() string {
	return strings.Replace(clientSource, "/*PATH*/", WebSocketPath, 1)
}
