package build

import (
	"encoding/json"
	"strings"
)

// runtimeSource is the module loader shared by every runtime chunk. It is
// installed once per page; later runtimes only merge their tables.
const runtimeSource = `(function (global) {
  var has = Object.prototype.hasOwnProperty;
  var create = function () {
    var modules = {};
    var cache = {};
    var installed = {};
    var waiting = {};
    var files = {};
    var styles = {};
    var targets = {};
    var publicPath = "/";

    var load = function (id) {
      if (has.call(cache, id)) return cache[id].exports;
      var def = modules[id];
      if (!def) throw new Error("bundlr: module " + id + " is not loaded");
      var module = (cache[id] = { id: id, exports: {} });
      def[1].call(module.exports, module, module.exports, makeRequire(def[0]));
      return module.exports;
    };
    var interop = function (m) {
      if (m && m.__esModule) return m;
      var ns = { default: m };
      if (m && typeof m === "object") {
        for (var k in m) if (k !== "default" && has.call(m, k)) ns[k] = m[k];
      }
      return ns;
    };
    var bind = function (exports, name, getter) {
      Object.defineProperty(exports, name, { enumerable: true, get: getter });
    };
    var reexport = function (exports, m) {
      Object.keys(m).forEach(function (k) {
        if (k === "default" || k === "__esModule" || has.call(exports, k)) return;
        bind(exports, k, function () { return m[k]; });
      });
    };
    var css = function (id, text) {
      var el = document.querySelector('style[data-bundlr-id="' + id + '"]');
      if (!el) {
        el = document.createElement("style");
        el.setAttribute("data-bundlr-id", id);
        document.head.appendChild(el);
      }
      el.textContent = text;
    };
    var loadChunk = function (name) {
      if (installed[name]) return Promise.resolve();
      if (waiting[name]) return waiting[name].promise;
      var w = (waiting[name] = {});
      w.promise = new Promise(function (resolve, reject) {
        w.resolve = resolve;
        if (styles[name]) {
          var link = document.createElement("link");
          link.rel = "stylesheet";
          link.href = publicPath + styles[name];
          document.head.appendChild(link);
        }
        var script = document.createElement("script");
        script.src = publicPath + files[name];
        script.onerror = function () {
          delete waiting[name];
          reject(new Error("bundlr: failed to load chunk " + name));
        };
        document.head.appendChild(script);
      });
      return w.promise;
    };
    var makeRequire = function (deps) {
      var require = function (spec) {
        if (!has.call(deps, spec)) throw new Error("bundlr: cannot find module '" + spec + "'");
        return load(deps[spec]);
      };
      require.interop = interop;
      require.bind = bind;
      require.reexport = reexport;
      require.css = css;
      require.async = function (spec) {
        if (!has.call(deps, spec)) return Promise.reject(new Error("bundlr: cannot find module '" + spec + "'"));
        var id = deps[spec];
        return Promise.all((targets[id] || []).map(loadChunk)).then(function () {
          return interop(load(id));
        });
      };
      return require;
    };
    var install = function (chunk) {
      var mods = chunk[1];
      for (var id in mods) if (has.call(mods, id)) modules[id] = mods[id];
      chunk[0].forEach(function (name) {
        installed[name] = true;
        if (waiting[name]) {
          waiting[name].resolve();
          delete waiting[name];
        }
      });
      if (chunk[2]) load(chunk[2]);
    };
    var merge = function (into, from) {
      for (var k in from) if (has.call(from, k)) into[k] = from[k];
    };
    return {
      configure: function (table) {
        publicPath = table.publicPath;
        merge(files, table.chunks);
        merge(styles, table.styles);
        merge(targets, table.targets);
      },
      drain: function () {
        var queue = (global.__bundlr_chunks__ = global.__bundlr_chunks__ || []);
        if (queue.push === Array.prototype.push) {
          queue.forEach(install);
          queue.push = function () {
            for (var i = 0; i < arguments.length; i++) install(arguments[i]);
            return queue.length;
          };
        }
      },
      require: load
    };
  };
  var rt = global.__bundlr__ || (global.__bundlr__ = create());
  rt.configure(/*TABLE*/);
  rt.drain();
})(self);
`

// runtimeTable is what one runtime chunk tells the loader: where chunks
// live and which chunks an async import target needs.
type runtimeTable struct {
	PublicPath string              `json:"publicPath"`
	Chunks     map[string]string   `json:"chunks"`
	Styles     map[string]string   `json:"styles"`
	Targets    map[string][]string `json:"targets"`
}

// renderRuntime returns the runtime chunk source for a table. Map keys are
// sorted by encoding/json, so equal tables render identically.
func renderRuntime(table runtimeTable) ([]byte, error) {
	if table.Chunks == nil {
		table.Chunks = map[string]string{}
	}
	if table.Styles == nil {
		table.Styles = map[string]string{}
	}
	if table.Targets == nil {
		table.Targets = map[string][]string{}
	}
	data, err := json.Marshal(table)
	if err != nil {
		return nil, err
	}
	return []byte(strings.Replace(runtimeSource, "/*TABLE*/", string(data), 1)), nil
}

// chunkHeader and chunkFooter wrap the module table of a chunk.
const chunkHeader = "(self.__bundlr_chunks__ = self.__bundlr_chunks__ || []).push([%s, {\n"
const chunkFooter = "}, %s]);\n"
